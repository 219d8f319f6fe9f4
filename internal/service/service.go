// Package service implements the alias lifecycle engine: collision-safe code
// assignment, visit accounting, expiry sweeps and cache consistency.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mlevchenko/url-alias/internal/cache"
	"github.com/mlevchenko/url-alias/internal/database"
	"github.com/mlevchenko/url-alias/internal/models"
	"github.com/mlevchenko/url-alias/internal/shortcode"
)

var (
	// ErrAliasTaken is returned when the requested code is already occupied.
	// For custom aliases this is final: they are never auto-mutated.
	ErrAliasTaken = errors.New("alias already taken")
	// ErrNotOwner is returned when the caller's owner id doesn't match the record's.
	ErrNotOwner = errors.New("alias owned by another user")
	// ErrMaxRetriesExceeded is returned when the maximum number of retries
	// for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	// ErrEmptyTargetURL is returned when a creation is attempted with an empty URL.
	ErrEmptyTargetURL = errors.New("empty target url")
)

const (
	defaultCacheTTL   = time.Minute
	defaultStaleAfter = 30 * 24 * time.Hour

	// maxGenerateRetries bounds the salt-and-rehash loop. The occupied set
	// read before generation can be stale, so the loop must terminate even
	// if every candidate keeps losing the insert race.
	maxGenerateRetries = 100
)

// AliasRepository defines the engine's view of the durable alias store.
type AliasRepository interface {
	// Create inserts a new active record. Fails with database.ErrAliasExists
	// when the code is occupied; the unique index is the authority.
	Create(ctx context.Context, code, targetURL string, ownerID *uuid.UUID, expiresAt *time.Time) (*models.Alias, error)

	// GetByCode retrieves an active record without touching its counters.
	GetByCode(ctx context.Context, code string) (*models.Alias, error)

	// RecordVisit atomically increments the visit counter and stamps
	// last_used_at, returning the updated record.
	RecordVisit(ctx context.Context, code string) (*models.Alias, error)

	// ListActiveCodes returns the set of occupied codes.
	ListActiveCodes(ctx context.Context) (map[string]struct{}, error)

	// GetCodesByURL returns the active codes pointing at a target URL.
	GetCodesByURL(ctx context.Context, targetURL string) ([]string, error)

	// Rename changes a record's code. Fails with database.ErrAliasNotFound or
	// database.ErrAliasExists.
	Rename(ctx context.Context, oldCode, newCode string) (*models.Alias, error)

	// Delete removes an active record.
	Delete(ctx context.Context, code string) error

	// ListExpired returns records past their expiry or older than staleBefore.
	ListExpired(ctx context.Context, now, staleBefore time.Time) ([]models.Alias, error)

	// Archive moves one record from the active set to the archive as a single
	// transactional unit.
	Archive(ctx context.Context, alias models.Alias, archivedAt time.Time) error

	// ListArchived returns the full archive.
	ListArchived(ctx context.Context) ([]models.ArchivedAlias, error)

	// GetArchivedByCode returns the archive entries for a code.
	GetArchivedByCode(ctx context.Context, code string) ([]models.ArchivedAlias, error)
}

// Cache defines the read-through cache consumed by the engine.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// AliasService provides the alias lifecycle operations. The store is the
// source of truth; every mutation invalidates the affected cache keys before
// the operation reports success.
type AliasService struct {
	repo       AliasRepository
	cache      Cache
	logger     *slog.Logger
	cacheTTL   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewAliasService creates a new AliasService. Non-positive cacheTTL and
// staleAfter fall back to the defaults (60s and 30 days).
func NewAliasService(repo AliasRepository, c Cache, logger *slog.Logger, cacheTTL, staleAfter time.Duration) *AliasService {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	return &AliasService{
		repo:       repo,
		cache:      c,
		logger:     logger,
		cacheTTL:   cacheTTL,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// CreateAlias assigns a code to the target URL and inserts the record.
//
// A custom alias is used verbatim and fails with ErrAliasTaken when occupied.
// Otherwise the code is derived from the URL, retrying with a fresh salt while
// the candidate collides, bounded by maxGenerateRetries. A sweep pass runs
// first so expired codes are freed before uniqueness is checked.
func (s *AliasService) CreateAlias(ctx context.Context, targetURL, customAlias string, expiresAt *time.Time, ownerID *uuid.UUID) (*models.Alias, error) {
	const op = "service.AliasService.CreateAlias"

	if targetURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyTargetURL)
	}

	if _, err := s.SweepExpired(ctx); err != nil {
		s.logger.Warn("sweep before creation failed", slog.Any("err", err))
	}

	occupied, err := s.repo.ListActiveCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list active codes: %w", op, err)
	}

	if customAlias != "" {
		if _, taken := occupied[customAlias]; taken {
			return nil, fmt.Errorf("%s: %w", op, ErrAliasTaken)
		}

		alias, err := s.repo.Create(ctx, customAlias, targetURL, ownerID, expiresAt)
		if err != nil {
			if errors.Is(err, database.ErrAliasExists) {
				return nil, fmt.Errorf("%s: %w", op, ErrAliasTaken)
			}

			return nil, fmt.Errorf("%s: failed to create alias: %w", op, err)
		}

		s.invalidate(ctx, cache.AliasKey(alias.Code), cache.StatsKey(alias.Code), cache.SearchKey(targetURL))

		return alias, nil
	}

	salt := ""
	for i := 0; i < maxGenerateRetries; i++ {
		code := shortcode.Generate(targetURL, salt)

		if _, taken := occupied[code]; !taken {
			alias, err := s.repo.Create(ctx, code, targetURL, ownerID, expiresAt)
			if err == nil {
				s.invalidate(ctx, cache.AliasKey(code), cache.StatsKey(code), cache.SearchKey(targetURL))

				return alias, nil
			}
			if !errors.Is(err, database.ErrAliasExists) {
				return nil, fmt.Errorf("%s: failed to create alias: %w", op, err)
			}

			// The occupied set was stale and the unique index caught the
			// race. Remember the code and retry with a fresh salt.
			occupied[code] = struct{}{}
		}

		salt, err = shortcode.NewSalt()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// Resolve returns the target URL for a code and records the visit.
//
// The redirect must succeed once the alias is known: on a cache hit, a visit
// accounting failure is logged and never surfaced. On a miss, the lookup and
// the accounting are one atomic store update, and the cache is populated on
// the way back.
func (s *AliasService) Resolve(ctx context.Context, code string) (string, error) {
	const op = "service.AliasService.Resolve"

	target, err := s.cache.Get(ctx, cache.AliasKey(code))
	if err == nil {
		if _, err := s.repo.RecordVisit(ctx, code); err != nil {
			s.logger.Error("failed to record visit",
				slog.String("code", code), slog.Any("err", err))
		}

		return target, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed, falling back to store", slog.Any("err", err))
	}

	alias, err := s.repo.RecordVisit(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%s: failed to resolve alias: %w", op, err)
	}

	if err := s.cache.Set(ctx, cache.AliasKey(code), alias.TargetURL, s.cacheTTL); err != nil {
		s.logger.Warn("failed to populate cache", slog.Any("err", err))
	}

	return alias.TargetURL, nil
}

// Stats returns the observational view of an alias. Served from cache with a
// short TTL; visit counts are allowed to be briefly stale.
func (s *AliasService) Stats(ctx context.Context, code string) (*models.AliasStats, error) {
	const op = "service.AliasService.Stats"

	key := cache.StatsKey(code)

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var stats models.AliasStats
		if err := json.Unmarshal([]byte(raw), &stats); err == nil {
			return &stats, nil
		}

		s.invalidate(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed, falling back to store", slog.Any("err", err))
	}

	alias, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get alias stats: %w", op, err)
	}

	stats := &models.AliasStats{
		TargetURL:  alias.TargetURL,
		VisitCount: alias.VisitCount,
		CreatedAt:  alias.CreatedAt,
		LastUsedAt: alias.LastUsedAt,
	}

	s.populate(ctx, key, stats)

	return stats, nil
}

// Search returns the active codes registered for a target URL.
func (s *AliasService) Search(ctx context.Context, targetURL string) ([]string, error) {
	const op = "service.AliasService.Search"

	key := cache.SearchKey(targetURL)

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var codes []string
		if err := json.Unmarshal([]byte(raw), &codes); err == nil {
			return codes, nil
		}

		s.invalidate(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed, falling back to store", slog.Any("err", err))
	}

	codes, err := s.repo.GetCodesByURL(ctx, targetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to search aliases: %w", op, err)
	}

	s.populate(ctx, key, codes)

	return codes, nil
}

// Rename changes an alias code. Only the record's owner may rename it; the
// cache entries for both codes are invalidated even when the store result is
// ambiguous.
func (s *AliasService) Rename(ctx context.Context, oldCode, newCode string, ownerID *uuid.UUID) (*models.Alias, error) {
	const op = "service.AliasService.Rename"

	alias, err := s.repo.GetByCode(ctx, oldCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get alias: %w", op, err)
	}
	if !ownedBy(alias, ownerID) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotOwner)
	}

	renamed, renameErr := s.repo.Rename(ctx, oldCode, newCode)

	s.invalidate(ctx,
		cache.AliasKey(oldCode), cache.StatsKey(oldCode),
		cache.AliasKey(newCode), cache.StatsKey(newCode),
		cache.SearchKey(alias.TargetURL))

	if renameErr != nil {
		if errors.Is(renameErr, database.ErrAliasExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrAliasTaken)
		}

		return nil, fmt.Errorf("%s: failed to rename alias: %w", op, renameErr)
	}

	return renamed, nil
}

// Delete removes an alias. Only the record's owner may delete it; invalidation
// is unconditional so a stale entry can't outlive the record.
func (s *AliasService) Delete(ctx context.Context, code string, ownerID *uuid.UUID) error {
	const op = "service.AliasService.Delete"

	alias, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("%s: failed to get alias: %w", op, err)
	}
	if !ownedBy(alias, ownerID) {
		return fmt.Errorf("%s: %w", op, ErrNotOwner)
	}

	deleteErr := s.repo.Delete(ctx, code)

	s.invalidate(ctx,
		cache.AliasKey(code), cache.StatsKey(code),
		cache.SearchKey(alias.TargetURL))

	if deleteErr != nil {
		return fmt.Errorf("%s: failed to delete alias: %w", op, deleteErr)
	}

	return nil
}

// SweepExpired archives every record past its expiry or older than the
// staleness threshold. Each record moves in its own transaction; a failure
// is logged and the record is retried on the next pass. The cache is cleared
// in full when at least one record was archived.
func (s *AliasService) SweepExpired(ctx context.Context) (int64, error) {
	const op = "service.AliasService.SweepExpired"

	now := s.now()

	expired, err := s.repo.ListExpired(ctx, now, now.Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("%s: failed to list expired aliases: %w", op, err)
	}

	var archived int64
	for _, alias := range expired {
		if err := s.repo.Archive(ctx, alias, now); err != nil {
			s.logger.Error("failed to archive alias",
				slog.String("code", alias.Code), slog.Any("err", err))
			continue
		}

		archived++
	}

	if archived > 0 {
		if err := s.cache.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear cache after sweep", slog.Any("err", err))
		}
	}

	return archived, nil
}

// ListArchived returns archive entries, either the whole archive or the
// history of one code.
func (s *AliasService) ListArchived(ctx context.Context, code string) ([]models.ArchivedAlias, error) {
	const op = "service.AliasService.ListArchived"

	if code == "" {
		archived, err := s.repo.ListArchived(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to list archived aliases: %w", op, err)
		}

		return archived, nil
	}

	archived, err := s.repo.GetArchivedByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get archived aliases: %w", op, err)
	}

	return archived, nil
}

func ownedBy(alias *models.Alias, ownerID *uuid.UUID) bool {
	return alias.OwnerID != nil && ownerID != nil && *alias.OwnerID == *ownerID
}

func (s *AliasService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate cache keys", slog.Any("err", err))
	}
}

func (s *AliasService) populate(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal cache value", slog.Any("err", err))
		return
	}

	if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.logger.Warn("failed to populate cache", slog.Any("err", err))
	}
}
