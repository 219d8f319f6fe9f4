package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/google/uuid"
	"github.com/mlevchenko/url-alias/internal/database"
	"github.com/mlevchenko/url-alias/internal/models"
	"github.com/mlevchenko/url-alias/internal/service"
	"github.com/mlevchenko/url-alias/pkg/response"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockAliasService struct {
	mock.Mock
}

func (m *MockAliasService) CreateAlias(ctx context.Context, targetURL, customAlias string, expiresAt *time.Time, ownerID *uuid.UUID) (*models.Alias, error) {
	args := m.Called(ctx, targetURL, customAlias, expiresAt, ownerID)
	alias, _ := args.Get(0).(*models.Alias)
	return alias, args.Error(1)
}

func (m *MockAliasService) Resolve(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockAliasService) Search(ctx context.Context, targetURL string) ([]string, error) {
	args := m.Called(ctx, targetURL)
	codes, _ := args.Get(0).([]string)
	return codes, args.Error(1)
}

func (m *MockAliasService) Stats(ctx context.Context, code string) (*models.AliasStats, error) {
	args := m.Called(ctx, code)
	stats, _ := args.Get(0).(*models.AliasStats)
	return stats, args.Error(1)
}

func (m *MockAliasService) Rename(ctx context.Context, oldCode, newCode string, ownerID *uuid.UUID) (*models.Alias, error) {
	args := m.Called(ctx, oldCode, newCode, ownerID)
	alias, _ := args.Get(0).(*models.Alias)
	return alias, args.Error(1)
}

func (m *MockAliasService) Delete(ctx context.Context, code string, ownerID *uuid.UUID) error {
	args := m.Called(ctx, code, ownerID)
	return args.Error(0)
}

func (m *MockAliasService) ListArchived(ctx context.Context, code string) ([]models.ArchivedAlias, error) {
	args := m.Called(ctx, code)
	archived, _ := args.Get(0).([]models.ArchivedAlias)
	return archived, args.Error(1)
}

func ownerMatcher(want uuid.UUID) any {
	return mock.MatchedBy(func(id *uuid.UUID) bool {
		return id != nil && *id == want
	})
}

type HandlersTestSuite struct {
	suite.Suite
	logger       *httplog.Logger
	aliasSvcMock *MockAliasService
	server       *httptest.Server
	e            *httpexpect.Expect
}

func (suite *HandlersTestSuite) SetupSuite() {
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *HandlersTestSuite) SetupSubTest() {
	suite.aliasSvcMock = new(MockAliasService)
	router := NewRouter(suite.logger, suite.aliasSvcMock)
	suite.server = httptest.NewServer(router)
	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *HandlersTestSuite) TearDownSubTest() {
	suite.aliasSvcMock.AssertExpectations(suite.T())
	suite.server.Close()
}

func (suite *HandlersTestSuite) TestPing() {
	const path = "/api/v1/ping"

	suite.Run("success", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			Text().IsEqual("pong\n")
	})
}

func (suite *HandlersTestSuite) TestCreateAlias() {
	const path = "/api/v1/links"

	suite.Run("empty request body", func() {
		suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.EmptyRequestBodyResponse.Message)
	})

	suite.Run("invalid request body", func() {
		suite.e.POST(path).
			WithJSON("invalid body").
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.BadRequestResponse.Message)
	})

	suite.Run("validation error", func() {
		suite.e.POST(path).
			WithJSON(map[string]string{
				"custom_alias": "promo",
			}).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			ContainsKey("message").
			ContainsKey("details")
	})

	suite.Run("custom alias taken", func() {
		suite.aliasSvcMock.
			On("CreateAlias", mock.Anything, "https://example.com", "promo", (*time.Time)(nil), (*uuid.UUID)(nil)).
			Times(1).
			Return(nil, service.ErrAliasTaken)

		suite.e.POST(path).
			WithJSON(map[string]string{
				"url":          "https://example.com",
				"custom_alias": "promo",
			}).
			Expect().
			Status(http.StatusConflict).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", "This alias is already taken.")

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "CreateAlias", 1)
	})

	suite.Run("server error", func() {
		suite.aliasSvcMock.
			On("CreateAlias", mock.Anything, "https://example.com", "", (*time.Time)(nil), (*uuid.UUID)(nil)).
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.POST(path).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "CreateAlias", 1)
	})

	suite.Run("success", func() {
		suite.aliasSvcMock.
			On("CreateAlias", mock.Anything, "https://example.com", "", (*time.Time)(nil), (*uuid.UUID)(nil)).
			Times(1).
			Return(&models.Alias{
				Code:      "abc123",
				TargetURL: "https://example.com",
			}, nil)

		suite.e.POST(path).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusCreated).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message").
			Value("data").Object().
			HasValue("code", "abc123").
			HasValue("url", "https://example.com")

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "CreateAlias", 1)
	})

	suite.Run("success with owner identity", func() {
		ownerID := uuid.New()

		suite.aliasSvcMock.
			On("CreateAlias", mock.Anything, "https://example.com", "", (*time.Time)(nil), ownerMatcher(ownerID)).
			Times(1).
			Return(&models.Alias{
				Code:      "abc123",
				TargetURL: "https://example.com",
				OwnerID:   &ownerID,
			}, nil)

		suite.e.POST(path).
			WithHeader("X-Owner-ID", ownerID.String()).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusCreated).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "CreateAlias", 1)
	})

	suite.Run("malformed owner header is treated as anonymous", func() {
		suite.aliasSvcMock.
			On("CreateAlias", mock.Anything, "https://example.com", "", (*time.Time)(nil), (*uuid.UUID)(nil)).
			Times(1).
			Return(&models.Alias{
				Code:      "abc123",
				TargetURL: "https://example.com",
			}, nil)

		suite.e.POST(path).
			WithHeader("X-Owner-ID", "not-a-uuid").
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusCreated)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "CreateAlias", 1)
	})
}

func (suite *HandlersTestSuite) TestRedirect() {
	const path = "/api/v1/links/%s"

	suite.Run("not found", func() {
		suite.aliasSvcMock.
			On("Resolve", mock.Anything, "abc123").
			Times(1).
			Return("", database.ErrAliasNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Resolve", 1)
	})

	suite.Run("server error", func() {
		suite.aliasSvcMock.
			On("Resolve", mock.Anything, "abc123").
			Times(1).
			Return("", errors.New("unknown error"))

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Resolve", 1)
	})

	suite.Run("success", func() {
		suite.aliasSvcMock.
			On("Resolve", mock.Anything, "abc123").
			Times(1).
			Return("https://example.com", nil)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusTemporaryRedirect).
			Header("Location").IsEqual("https://example.com")

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Resolve", 1)
	})
}

func (suite *HandlersTestSuite) TestSearchAliases() {
	const path = "/api/v1/links/search"

	suite.Run("missing url parameter", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", "Query parameter 'url' is required.")
	})

	suite.Run("server error", func() {
		suite.aliasSvcMock.
			On("Search", mock.Anything, "https://example.com").
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.GET(path).
			WithQuery("url", "https://example.com").
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Search", 1)
	})

	suite.Run("success", func() {
		suite.aliasSvcMock.
			On("Search", mock.Anything, "https://example.com").
			Times(1).
			Return([]string{"abc123", "promo"}, nil)

		suite.e.GET(path).
			WithQuery("url", "https://example.com").
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Array().
			ConsistsOf("abc123", "promo")

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Search", 1)
	})
}

func (suite *HandlersTestSuite) TestAliasStats() {
	const path = "/api/v1/links/%s/stats"

	suite.Run("not found", func() {
		suite.aliasSvcMock.
			On("Stats", mock.Anything, "abc123").
			Times(1).
			Return(nil, database.ErrAliasNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Stats", 1)
	})

	suite.Run("success", func() {
		suite.aliasSvcMock.
			On("Stats", mock.Anything, "abc123").
			Times(1).
			Return(&models.AliasStats{
				TargetURL:  "https://example.com",
				VisitCount: 5,
			}, nil)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Object().
			HasValue("target_url", "https://example.com").
			HasValue("redirect_count", 5)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Stats", 1)
	})
}

func (suite *HandlersTestSuite) TestRenameAlias() {
	const path = "/api/v1/links/%s"

	suite.Run("empty request body", func() {
		suite.e.PUT(fmt.Sprintf(path, "old123")).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.EmptyRequestBodyResponse.Message)
	})

	suite.Run("validation error", func() {
		suite.e.PUT(fmt.Sprintf(path, "old123")).
			WithJSON(map[string]string{}).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			ContainsKey("details")
	})

	suite.Run("not found", func() {
		suite.aliasSvcMock.
			On("Rename", mock.Anything, "old123", "new123", (*uuid.UUID)(nil)).
			Times(1).
			Return(nil, database.ErrAliasNotFound)

		suite.e.PUT(fmt.Sprintf(path, "old123")).
			WithJSON(map[string]string{
				"new_code": "new123",
			}).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Rename", 1)
	})

	suite.Run("not the owner", func() {
		ownerID := uuid.New()

		suite.aliasSvcMock.
			On("Rename", mock.Anything, "old123", "new123", ownerMatcher(ownerID)).
			Times(1).
			Return(nil, service.ErrNotOwner)

		suite.e.PUT(fmt.Sprintf(path, "old123")).
			WithHeader("X-Owner-ID", ownerID.String()).
			WithJSON(map[string]string{
				"new_code": "new123",
			}).
			Expect().
			Status(http.StatusForbidden).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.PermissionDeniedResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Rename", 1)
	})

	suite.Run("new code taken", func() {
		suite.aliasSvcMock.
			On("Rename", mock.Anything, "old123", "new123", (*uuid.UUID)(nil)).
			Times(1).
			Return(nil, service.ErrAliasTaken)

		suite.e.PUT(fmt.Sprintf(path, "old123")).
			WithJSON(map[string]string{
				"new_code": "new123",
			}).
			Expect().
			Status(http.StatusConflict).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", "This alias is already taken.")

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Rename", 1)
	})

	suite.Run("success", func() {
		ownerID := uuid.New()

		suite.aliasSvcMock.
			On("Rename", mock.Anything, "old123", "new123", ownerMatcher(ownerID)).
			Times(1).
			Return(&models.Alias{
				Code:      "new123",
				TargetURL: "https://example.com",
				OwnerID:   &ownerID,
			}, nil)

		suite.e.PUT(fmt.Sprintf(path, "old123")).
			WithHeader("X-Owner-ID", ownerID.String()).
			WithJSON(map[string]string{
				"new_code": "new123",
			}).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Object().
			HasValue("code", "new123").
			HasValue("url", "https://example.com")

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Rename", 1)
	})
}

func (suite *HandlersTestSuite) TestDeleteAlias() {
	const path = "/api/v1/links/%s"

	suite.Run("not found", func() {
		suite.aliasSvcMock.
			On("Delete", mock.Anything, "abc123", (*uuid.UUID)(nil)).
			Times(1).
			Return(database.ErrAliasNotFound)

		suite.e.DELETE(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Delete", 1)
	})

	suite.Run("not the owner", func() {
		ownerID := uuid.New()

		suite.aliasSvcMock.
			On("Delete", mock.Anything, "abc123", ownerMatcher(ownerID)).
			Times(1).
			Return(service.ErrNotOwner)

		suite.e.DELETE(fmt.Sprintf(path, "abc123")).
			WithHeader("X-Owner-ID", ownerID.String()).
			Expect().
			Status(http.StatusForbidden).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.PermissionDeniedResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Delete", 1)
	})

	suite.Run("success", func() {
		ownerID := uuid.New()

		suite.aliasSvcMock.
			On("Delete", mock.Anything, "abc123", ownerMatcher(ownerID)).
			Times(1).
			Return(nil)

		suite.e.DELETE(fmt.Sprintf(path, "abc123")).
			WithHeader("X-Owner-ID", ownerID.String()).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message")

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "Delete", 1)
	})
}

func (suite *HandlersTestSuite) TestListArchived() {
	const path = "/api/v1/links/archive"

	suite.Run("unknown code", func() {
		suite.aliasSvcMock.
			On("ListArchived", mock.Anything, "old111").
			Times(1).
			Return(nil, database.ErrAliasNotFound)

		suite.e.GET(path).
			WithQuery("code", "old111").
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "ListArchived", 1)
	})

	suite.Run("success", func() {
		now := time.Now().UTC()

		suite.aliasSvcMock.
			On("ListArchived", mock.Anything, "").
			Times(1).
			Return([]models.ArchivedAlias{
				{
					Code:       "old111",
					TargetURL:  "https://example.com",
					VisitCount: 3,
					ArchivedAt: now,
				},
			}, nil)

		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Array().
			Length().IsEqual(1)

		suite.aliasSvcMock.AssertNumberOfCalls(suite.T(), "ListArchived", 1)
	})
}

func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
