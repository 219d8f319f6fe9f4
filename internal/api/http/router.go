package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mlevchenko/url-alias/internal/models"
)

// AliasService defines the interface for the core alias lifecycle engine.
type AliasService interface {
	// CreateAlias assigns a short code to the target URL and stores the record.
	// A custom alias is used verbatim and fails if already occupied.
	CreateAlias(ctx context.Context, targetURL, customAlias string, expiresAt *time.Time, ownerID *uuid.UUID) (*models.Alias, error)

	// Resolve returns the target URL for a code and records the visit.
	Resolve(ctx context.Context, code string) (string, error)

	// Search returns the active codes registered for a target URL.
	Search(ctx context.Context, targetURL string) ([]string, error)

	// Stats returns the observational view of an alias.
	Stats(ctx context.Context, code string) (*models.AliasStats, error)

	// Rename changes an alias code on behalf of its owner.
	Rename(ctx context.Context, oldCode, newCode string, ownerID *uuid.UUID) (*models.Alias, error)

	// Delete removes an alias on behalf of its owner.
	Delete(ctx context.Context, code string, ownerID *uuid.UUID) error

	// ListArchived returns archive entries, optionally filtered by code.
	ListArchived(ctx context.Context, code string) ([]models.ArchivedAlias, error)
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, aliasSvc AliasService) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "X-Owner-ID"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(ownerIdentity)

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Route("/links", func(r chi.Router) {
			r.Post("/", handleCreateAlias(aliasSvc, validate))
			r.Get("/search", handleSearchAliases(aliasSvc))
			r.Get("/archive", handleListArchived(aliasSvc))

			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", handleRedirect(aliasSvc))
				r.Put("/", handleRenameAlias(aliasSvc, validate))
				r.Delete("/", handleDeleteAlias(aliasSvc))
				r.Get("/stats", handleAliasStats(aliasSvc))
			})
		})
	})

	return r
}
