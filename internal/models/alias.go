// Package models defines the alias records managed by the engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Alias represents an active short code mapped to a target URL.
type Alias struct {
	// ID is the unique identifier for the alias record.
	ID int64
	// Code is the short code assigned to the target URL. Unique among active records.
	Code string
	// TargetURL is the original, full-length URL that the code points to.
	// It is stored as an opaque string and never validated for reachability.
	TargetURL string
	// OwnerID references the creator identity. Nil for anonymous creations.
	OwnerID *uuid.UUID
	// VisitCount tracks how many times the alias has been resolved.
	// It never decreases while the record is active.
	VisitCount int64
	// CreatedAt is the timestamp when the alias was created.
	CreatedAt time.Time
	// LastUsedAt is the timestamp of the most recent visit. Nil until the first one.
	LastUsedAt *time.Time
	// ExpiresAt is the explicit expiry time. Nil means no explicit expiry.
	ExpiresAt *time.Time
}

// ArchivedAlias is an alias removed from the active set by the sweeper or kept
// for historical lookup. Immutable once written.
type ArchivedAlias struct {
	ID         int64
	Code       string
	TargetURL  string
	OwnerID    *uuid.UUID
	VisitCount int64
	CreatedAt  time.Time
	LastUsedAt *time.Time
	// ExpiredAt carries the original expires_at of the record, if it had one.
	ExpiredAt *time.Time
	// ArchivedAt is the timestamp of the sweep pass that moved the record here.
	ArchivedAt time.Time
}

// AliasStats is the observational view of an alias returned by the stats operation.
// Values may be briefly stale when served from cache.
type AliasStats struct {
	TargetURL  string     `json:"target_url"`
	VisitCount int64      `json:"redirect_count"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
