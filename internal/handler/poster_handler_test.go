package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"kivop-be/internal/config"
	"kivop-be/internal/container"
	"kivop-be/internal/domain"
	"kivop-be/internal/middleware"
	"kivop-be/internal/repository"
	"kivop-be/internal/service"
	apperrors "kivop-be/pkg/errors"
	"kivop-be/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu        sync.Mutex
	posters   map[string]domain.Poster
	positions map[string]domain.PosterPosition
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{posters: map[string]domain.Poster{}, positions: map[string]domain.PosterPosition{}}
}

func (r *fakeRepo) CreatePoster(ctx context.Context, p *domain.Poster, positions []domain.PosterPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posters[p.ID] = *p
	for _, pos := range positions {
		r.positions[pos.ID] = pos
	}
	return nil
}

func (r *fakeRepo) GetPoster(ctx context.Context, id string) (*domain.Poster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posters[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (r *fakeRepo) ListPosters(ctx context.Context) ([]domain.Poster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Poster
	for _, p := range r.posters {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRepo) ListPositions(ctx context.Context, posterID string) ([]domain.PosterPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.PosterPosition{}
	for _, pos := range r.positions {
		if pos.PosterID == posterID {
			out = append(out, pos.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepo) GetPosition(ctx context.Context, id string) (*domain.PosterPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos, ok := r.positions[id]; ok {
		c := pos.Clone()
		return &c, nil
	}
	return nil, nil
}

func (r *fakeRepo) UpdatePosition(ctx context.Context, pos domain.PosterPosition, expected domain.PositionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.positions[pos.ID].Status != expected {
		return repository.ErrStaleWrite
	}
	r.positions[pos.ID] = pos.Clone()
	return nil
}

// withUser stands in for the auth middleware
func withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.UserContextKey, &domain.UserProfile{Sub: "alice"})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func setupRouter(t *testing.T) (*fakeRepo, http.Handler) {
	t.Helper()
	repo := newFakeRepo()
	repo.posters["p1"] = domain.Poster{ID: "p1", Name: "Sommerfest"}
	repo.positions["a"] = domain.PosterPosition{
		ID:               "a",
		PosterID:         "p1",
		Status:           domain.StatusToHang,
		ExpiresAt:        testNow.Add(3 * 24 * time.Hour),
		ResponsibleUsers: []string{},
	}

	svc := service.NewPosterService(repo, nil, zap.NewNop(), 2)
	svc.SetClock(func() time.Time { return testNow })

	r := chi.NewRouter()
	r.Use(middleware.RequestID(logger.NewNop()))
	r.Use(withUser)
	r.Route("/api/v1", NewPosterHandler(svc, logger.NewNop()).RegisterRoutes)
	return repo, r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPosterHandler_HangAndSummary(t *testing.T) {
	repo, h := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/posters/positions/a/hang", map[string]interface{}{
		"image":       []byte("jpeg-bytes"),
		"coordinates": map[string]float64{"latitude": 51.96, "longitude": 7.62},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view domain.PositionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, domain.StatusHangs, view.EffectiveStatus)
	assert.Equal(t, "alice", view.PostedBy)
	assert.Equal(t, []byte("jpeg-bytes"), view.Image)
	assert.Equal(t, domain.StatusHangs, repo.positions["a"].Status)

	rec = do(t, h, http.MethodGet, "/api/v1/posters/p1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.PosterSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Hangs)
	require.NotNil(t, summary.NextTakeDown)
}

func TestPosterHandler_SummaryETag(t *testing.T) {
	_, h := setupRouter(t)

	first := do(t, h, http.MethodGet, "/api/v1/posters/p1/summary", nil)
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posters/p1/summary", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestPosterHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{
			name:       "missing evidence",
			method:     http.MethodPost,
			path:       "/api/v1/posters/positions/a/hang",
			body:       map[string]interface{}{},
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.ErrorTypeValidation,
		},
		{
			name:       "take down before hanging",
			method:     http.MethodPost,
			path:       "/api/v1/posters/positions/a/take-down",
			body:       map[string]interface{}{"image": []byte("x")},
			wantStatus: http.StatusConflict,
			wantType:   apperrors.ErrorTypeConflict,
		},
		{
			name:       "unknown position",
			method:     http.MethodPost,
			path:       "/api/v1/posters/positions/nope/report-damage",
			body:       map[string]interface{}{"image": []byte("x")},
			wantStatus: http.StatusNotFound,
			wantType:   apperrors.ErrorTypeNotFound,
		},
		{
			name:       "unknown poster",
			method:     http.MethodGet,
			path:       "/api/v1/posters/nope",
			wantStatus: http.StatusNotFound,
			wantType:   apperrors.ErrorTypeNotFound,
		},
		{
			name:       "unknown view",
			method:     http.MethodGet,
			path:       "/api/v1/posters?view=all",
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.ErrorTypeValidation,
		},
		{
			name:       "malformed body",
			method:     http.MethodPost,
			path:       "/api/v1/posters",
			body:       "not an object",
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := setupRouter(t)
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantType, body.Error.Type)
			assert.NotEmpty(t, body.Error.RequestID)
		})
	}
}

func TestPosterHandler_CreateAndList(t *testing.T) {
	_, h := setupRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/posters", domain.CreatePosterRequest{
		Name: "Flohmarkt",
		Positions: []domain.NewPositionRequest{
			{ExpiresAt: testNow.Add(24 * time.Hour)},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var detail domain.PosterDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 1, detail.Summary.ToHang)

	rec = do(t, h, http.MethodGet, "/api/v1/posters?view=current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var overviews []domain.PosterOverview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overviews))
	require.Len(t, overviews, 2)
	// Flohmarkt expires first
	assert.Equal(t, "Flohmarkt", overviews[0].Poster.Name)

	rec = do(t, h, http.MethodGet, "/api/v1/posters?view=archived", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestPosterHandler_PositionsOmitImage(t *testing.T) {
	repo, h := setupRouter(t)
	pos := repo.positions["a"]
	pos.Image = []byte("jpeg")
	repo.positions["a"] = pos

	rec := do(t, h, http.MethodGet, "/api/v1/posters/p1/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.NotContains(t, views[0], "image")
	assert.Equal(t, true, views[0]["has_image"])

	rec = do(t, h, http.MethodGet, "/api/v1/posters/positions/a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var full map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.Contains(t, full, "image")
}

type stubHealth struct{ err error }

func (s stubHealth) Health(ctx context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	c, err := container.New(&config.Config{Environment: "test"}, logger.NewNop(), newFakeRepo())
	require.NoError(t, err)

	tests := []struct {
		name       string
		db         HealthChecker
		wantStatus int
		wantState  string
	}{
		{"database up", stubHealth{}, http.StatusOK, "healthy"},
		{"database down", stubHealth{err: errors.New("refused")}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(c, tt.db).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body.Status)
			assert.Equal(t, "disabled", body.Checks["cache"])
		})
	}
}

func TestAuthHandler_GetProfile(t *testing.T) {
	c, err := container.New(&config.Config{Environment: "test"}, logger.NewNop(), newFakeRepo())
	require.NoError(t, err)
	h := NewAuthHandler(c)

	rec := httptest.NewRecorder()
	h.GetProfile(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	withUser(http.HandlerFunc(h.GetProfile)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body UserProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.User.Sub)
}
