package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mlevchenko/url-alias/internal/database"
	"github.com/mlevchenko/url-alias/internal/models"
)

type aliasRecord struct {
	ID         int64         `db:"id"`
	Code       string        `db:"code"`
	TargetURL  string        `db:"target_url"`
	OwnerID    uuid.NullUUID `db:"owner_id"`
	VisitCount int64         `db:"visit_count"`
	CreatedAt  time.Time     `db:"created_at"`
	LastUsedAt sql.NullTime  `db:"last_used_at"`
	ExpiresAt  sql.NullTime  `db:"expires_at"`
}

func (r *aliasRecord) ToAlias() *models.Alias {
	alias := &models.Alias{
		ID:         r.ID,
		Code:       r.Code,
		TargetURL:  r.TargetURL,
		VisitCount: r.VisitCount,
		CreatedAt:  r.CreatedAt,
	}

	if r.OwnerID.Valid {
		id := r.OwnerID.UUID
		alias.OwnerID = &id
	}
	if r.LastUsedAt.Valid {
		t := r.LastUsedAt.Time
		alias.LastUsedAt = &t
	}
	if r.ExpiresAt.Valid {
		t := r.ExpiresAt.Time
		alias.ExpiresAt = &t
	}

	return alias
}

type archivedAliasRecord struct {
	ID         int64         `db:"id"`
	Code       string        `db:"code"`
	TargetURL  string        `db:"target_url"`
	OwnerID    uuid.NullUUID `db:"owner_id"`
	VisitCount int64         `db:"visit_count"`
	CreatedAt  time.Time     `db:"created_at"`
	LastUsedAt sql.NullTime  `db:"last_used_at"`
	ExpiredAt  sql.NullTime  `db:"expired_at"`
	ArchivedAt time.Time     `db:"archived_at"`
}

func (r *archivedAliasRecord) ToArchivedAlias() *models.ArchivedAlias {
	alias := &models.ArchivedAlias{
		ID:         r.ID,
		Code:       r.Code,
		TargetURL:  r.TargetURL,
		VisitCount: r.VisitCount,
		CreatedAt:  r.CreatedAt,
		ArchivedAt: r.ArchivedAt,
	}

	if r.OwnerID.Valid {
		id := r.OwnerID.UUID
		alias.OwnerID = &id
	}
	if r.LastUsedAt.Valid {
		t := r.LastUsedAt.Time
		alias.LastUsedAt = &t
	}
	if r.ExpiredAt.Valid {
		t := r.ExpiredAt.Time
		alias.ExpiredAt = &t
	}

	return alias
}

type AliasRepository struct {
	db *sqlx.DB
}

func NewAliasRepository(db *sqlx.DB) *AliasRepository {
	return &AliasRepository{
		db: db,
	}
}

func (r *AliasRepository) Create(ctx context.Context, code, targetURL string, ownerID *uuid.UUID, expiresAt *time.Time) (*models.Alias, error) {
	const op = "database.postgres.AliasRepository.Create"

	rec := new(aliasRecord)
	query := `INSERT INTO aliases(code, target_url, owner_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, code, targetURL, ownerID, expiresAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrAliasExists)
		}

		return nil, fmt.Errorf("%s: failed to create alias record: %w", op, err)
	}

	return rec.ToAlias(), nil
}

func (r *AliasRepository) GetByCode(ctx context.Context, code string) (*models.Alias, error) {
	const op = "database.postgres.AliasRepository.GetByCode"

	rec := new(aliasRecord)
	query := `SELECT * FROM aliases WHERE code = $1`

	err := r.db.GetContext(ctx, rec, query, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrAliasNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get alias record: %w", op, err)
	}

	return rec.ToAlias(), nil
}

// RecordVisit increments the visit counter and stamps last_used_at as a single
// atomic statement, returning the updated record. Concurrent calls never lose
// increments because the addition happens inside the statement.
func (r *AliasRepository) RecordVisit(ctx context.Context, code string) (*models.Alias, error) {
	const op = "database.postgres.AliasRepository.RecordVisit"

	rec := new(aliasRecord)
	query := `UPDATE aliases
		SET visit_count = visit_count + 1, last_used_at = now()
		WHERE code = $1
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, code)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrAliasNotFound)
		}

		return nil, fmt.Errorf("%s: failed to record visit: %w", op, err)
	}

	return rec.ToAlias(), nil
}

func (r *AliasRepository) ListActiveCodes(ctx context.Context) (map[string]struct{}, error) {
	const op = "database.postgres.AliasRepository.ListActiveCodes"

	var codes []string
	query := `SELECT code FROM aliases`

	if err := r.db.SelectContext(ctx, &codes, query); err != nil {
		return nil, fmt.Errorf("%s: failed to list active codes: %w", op, err)
	}

	occupied := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		occupied[code] = struct{}{}
	}

	return occupied, nil
}

func (r *AliasRepository) GetCodesByURL(ctx context.Context, targetURL string) ([]string, error) {
	const op = "database.postgres.AliasRepository.GetCodesByURL"

	codes := []string{}
	query := `SELECT code FROM aliases WHERE target_url = $1 ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &codes, query, targetURL); err != nil {
		return nil, fmt.Errorf("%s: failed to get codes by url: %w", op, err)
	}

	return codes, nil
}

func (r *AliasRepository) Rename(ctx context.Context, oldCode, newCode string) (*models.Alias, error) {
	const op = "database.postgres.AliasRepository.Rename"

	rec := new(aliasRecord)
	query := `UPDATE aliases
		SET code = $1
		WHERE code = $2
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, newCode, oldCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrAliasNotFound)
		}
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrAliasExists)
		}

		return nil, fmt.Errorf("%s: failed to rename alias: %w", op, err)
	}

	return rec.ToAlias(), nil
}

func (r *AliasRepository) Delete(ctx context.Context, code string) error {
	const op = "database.postgres.AliasRepository.Delete"

	query := `DELETE FROM aliases WHERE code = $1`

	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return fmt.Errorf("%s: failed to delete alias record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrAliasNotFound)
	}

	return nil
}

// ListExpired returns active records whose explicit expiry has passed or that
// were created before the staleness cutoff.
func (r *AliasRepository) ListExpired(ctx context.Context, now, staleBefore time.Time) ([]models.Alias, error) {
	const op = "database.postgres.AliasRepository.ListExpired"

	var recs []aliasRecord
	query := `SELECT * FROM aliases WHERE expires_at <= $1 OR created_at < $2`

	if err := r.db.SelectContext(ctx, &recs, query, now, staleBefore); err != nil {
		return nil, fmt.Errorf("%s: failed to list expired aliases: %w", op, err)
	}

	aliases := make([]models.Alias, 0, len(recs))
	for i := range recs {
		aliases = append(aliases, *recs[i].ToAlias())
	}

	return aliases, nil
}

// Archive moves a single record from the active set into the archive. The
// insert and the delete run in one transaction, so the record is never visible
// in both sets or absent from both. The delete is keyed by record id: if the
// row was already removed or replaced, the transaction is rolled back and
// ErrAliasNotFound is returned.
func (r *AliasRepository) Archive(ctx context.Context, alias models.Alias, archivedAt time.Time) error {
	const op = "database.postgres.AliasRepository.Archive"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	insertQuery := `INSERT INTO archived_aliases(code, target_url, owner_id, visit_count, created_at, last_used_at, expired_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.ExecContext(ctx, insertQuery,
		alias.Code, alias.TargetURL, alias.OwnerID, alias.VisitCount,
		alias.CreatedAt, alias.LastUsedAt, alias.ExpiresAt, archivedAt)
	if err != nil {
		return fmt.Errorf("%s: failed to insert archived record: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM aliases WHERE id = $1`, alias.ID)
	if err != nil {
		return fmt.Errorf("%s: failed to delete active record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrAliasNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return nil
}

func (r *AliasRepository) ListArchived(ctx context.Context) ([]models.ArchivedAlias, error) {
	const op = "database.postgres.AliasRepository.ListArchived"

	var recs []archivedAliasRecord
	query := `SELECT * FROM archived_aliases ORDER BY archived_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query); err != nil {
		return nil, fmt.Errorf("%s: failed to list archived aliases: %w", op, err)
	}

	aliases := make([]models.ArchivedAlias, 0, len(recs))
	for i := range recs {
		aliases = append(aliases, *recs[i].ToArchivedAlias())
	}

	return aliases, nil
}

func (r *AliasRepository) GetArchivedByCode(ctx context.Context, code string) ([]models.ArchivedAlias, error) {
	const op = "database.postgres.AliasRepository.GetArchivedByCode"

	var recs []archivedAliasRecord
	query := `SELECT * FROM archived_aliases WHERE code = $1 ORDER BY archived_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query, code); err != nil {
		return nil, fmt.Errorf("%s: failed to get archived aliases: %w", op, err)
	}

	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, database.ErrAliasNotFound)
	}

	aliases := make([]models.ArchivedAlias, 0, len(recs))
	for i := range recs {
		aliases = append(aliases, *recs[i].ToArchivedAlias())
	}

	return aliases, nil
}
