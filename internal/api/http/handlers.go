package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/mlevchenko/url-alias/internal/database"
	"github.com/mlevchenko/url-alias/internal/models"
	"github.com/mlevchenko/url-alias/internal/service"
	"github.com/mlevchenko/url-alias/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// createAliasRequest represents the request payload for creating an alias.
type createAliasRequest struct {
	URL         string     `json:"url" validate:"required"`
	CustomAlias string     `json:"custom_alias,omitempty" validate:"omitempty,max=64"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// renameAliasRequest represents the request payload for renaming an alias.
type renameAliasRequest struct {
	NewCode string `json:"new_code" validate:"required,max=64"`
}

// aliasResponse represents the response payload for an alias operation.
type aliasResponse struct {
	Code       string     `json:"code"`
	URL        string     `json:"url"`
	VisitCount int64      `json:"visit_count"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// toAliasResponse converts an alias model from the business layer into a response payload.
func toAliasResponse(alias *models.Alias) aliasResponse {
	return aliasResponse{
		Code:       alias.Code,
		URL:        alias.TargetURL,
		VisitCount: alias.VisitCount,
		CreatedAt:  alias.CreatedAt,
		LastUsedAt: alias.LastUsedAt,
		ExpiresAt:  alias.ExpiresAt,
	}
}

// archivedAliasResponse represents one archive entry in a response payload.
type archivedAliasResponse struct {
	Code       string     `json:"code"`
	URL        string     `json:"url"`
	VisitCount int64      `json:"visit_count"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiredAt  *time.Time `json:"expired_at,omitempty"`
	ArchivedAt time.Time  `json:"archived_at"`
}

func toArchivedAliasResponse(alias models.ArchivedAlias) archivedAliasResponse {
	return archivedAliasResponse{
		Code:       alias.Code,
		URL:        alias.TargetURL,
		VisitCount: alias.VisitCount,
		CreatedAt:  alias.CreatedAt,
		LastUsedAt: alias.LastUsedAt,
		ExpiredAt:  alias.ExpiredAt,
		ArchivedAt: alias.ArchivedAt,
	}
}

// handleCreateAlias handles POST requests to register a short alias for a URL.
//
// The request must contain the target URL and may carry a custom alias and an
// expiry time. The handler returns the assigned code with relevant metadata.
func handleCreateAlias(svc AliasService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleCreateAlias"
	const successMsg = "The alias has been created successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req createAliasRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		alias, err := svc.CreateAlias(r.Context(), req.URL, req.CustomAlias, req.ExpiresAt, ownerFromContext(r.Context()))
		if err != nil {
			if errors.Is(err, service.ErrAliasTaken) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.ErrorResponse("This alias is already taken."))
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toAliasResponse(alias)))
	}
}

// handleRedirect handles GET requests to resolve a code and redirect the
// client to the target URL.
func handleRedirect(svc AliasService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		target, err := svc.Resolve(r.Context(), code)
		if err != nil {
			if errors.Is(err, database.ErrAliasNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, target, http.StatusTemporaryRedirect)
	}
}

// handleSearchAliases handles GET requests to find the codes registered for a
// target URL.
func handleSearchAliases(svc AliasService) http.HandlerFunc {
	const op = "api.http.handleSearchAliases"
	const successMsg = "The search completed successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		targetURL := r.URL.Query().Get("url")
		if targetURL == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorResponse("Query parameter 'url' is required."))
			return
		}

		codes, err := svc.Search(r.Context(), targetURL)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, codes))
	}
}

// handleAliasStats handles GET requests to retrieve usage statistics for an alias.
//
// Values may be briefly stale: stats are served through a short-lived cache.
func handleAliasStats(svc AliasService) http.HandlerFunc {
	const op = "api.http.handleAliasStats"
	const successMsg = "The alias statistics retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		stats, err := svc.Stats(r.Context(), code)
		if err != nil {
			if errors.Is(err, database.ErrAliasNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, stats))
	}
}

// handleRenameAlias handles PUT requests to change an alias code.
//
// Only the record's owner may rename it. The new code must not be occupied.
func handleRenameAlias(svc AliasService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleRenameAlias"
	const successMsg = "The alias was successfully renamed."

	return func(w http.ResponseWriter, r *http.Request) {
		var req renameAliasRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		code := chi.URLParam(r, "code")

		alias, err := svc.Rename(r.Context(), code, req.NewCode, ownerFromContext(r.Context()))
		if err != nil {
			switch {
			case errors.Is(err, database.ErrAliasNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, service.ErrNotOwner):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.PermissionDeniedResponse)
			case errors.Is(err, service.ErrAliasTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.ErrorResponse("This alias is already taken."))
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toAliasResponse(alias)))
	}
}

// handleDeleteAlias handles DELETE requests to remove an alias.
//
// Only the record's owner may delete it.
func handleDeleteAlias(svc AliasService) http.HandlerFunc {
	const op = "api.http.handleDeleteAlias"
	const successMsg = "The alias was successfully deleted."

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		err := svc.Delete(r.Context(), code, ownerFromContext(r.Context()))
		if err != nil {
			switch {
			case errors.Is(err, database.ErrAliasNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, service.ErrNotOwner):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.PermissionDeniedResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleListArchived handles GET requests to browse the archive, either the
// whole set or the history of one code.
func handleListArchived(svc AliasService) http.HandlerFunc {
	const op = "api.http.handleListArchived"
	const successMsg = "The archived aliases retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")

		archived, err := svc.ListArchived(r.Context(), code)
		if err != nil {
			if errors.Is(err, database.ErrAliasNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := make([]archivedAliasResponse, 0, len(archived))
		for _, alias := range archived {
			data = append(data, toArchivedAliasResponse(alias))
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}
