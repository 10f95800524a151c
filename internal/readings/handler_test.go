package readings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathlet/internal/insights"
	"pathlet/internal/logger"
)

func setupRouter(svc *Service, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	NewHandler(svc, logger.Discard()).RegisterRoutes(api)
	return r
}

func request(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateAndGet(t *testing.T) {
	svc := NewService(newMemStore(), insights.NewStaticGenerator(), nil, logger.Discard())
	r := setupRouter(svc, "user-1")

	w := request(r, http.MethodPost, "/api/readings",
		`{"date":"1990-08-14","time":"06:30","city":"Lisbon","country":"Portugal"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created Reading
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "Pisces", created.Insights.Astrology.MoonSign)

	w = request(r, http.MethodGet, "/api/readings/"+created.ID.String(), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodGet, "/api/readings/latest", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(r, http.MethodGet, "/api/readings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
}

func TestHandler_CreateValidation(t *testing.T) {
	svc := NewService(newMemStore(), insights.NewStaticGenerator(), nil, logger.Discard())
	r := setupRouter(svc, "user-1")

	w := request(r, http.MethodPost, "/api/readings",
		`{"date":"1990-08-14","time":"6pm","city":"Lisbon","country":"Portugal"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid time format", body["error"])
}

func TestHandler_OtherUsersReadingIsNotFound(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, insights.NewStaticGenerator(), nil, logger.Discard())
	theirs, err := svc.Create(context.Background(), Owner{ID: "user-2"}, details())
	require.NoError(t, err)

	r := setupRouter(svc, "user-1")
	w := request(r, http.MethodGet, "/api/readings/"+theirs.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(r, http.MethodGet, "/api/readings/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(r, http.MethodGet, "/api/readings/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_RequiresUser(t *testing.T) {
	svc := NewService(newMemStore(), insights.NewStaticGenerator(), nil, logger.Discard())
	w := request(setupRouter(svc, ""), http.MethodGet, "/api/readings", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_Export(t *testing.T) {
	svc := NewService(newMemStore(), insights.NewStaticGenerator(), nil, logger.Discard())
	created, err := svc.Create(context.Background(), Owner{ID: "user-1"}, details())
	require.NoError(t, err)
	path := "/api/readings/" + created.ID.String() + "/export"

	w := request(setupRouter(svc, "user-1"), http.MethodGet, path, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	svc.WithArchive(&memArchive{})
	w = request(setupRouter(svc, "user-1"), http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	var export Export
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
	assert.Equal(t, created.ID, export.ReadingID)

	w = request(setupRouter(svc, "user-2"), http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ListLimit(t *testing.T) {
	svc := NewService(newMemStore(), insights.NewStaticGenerator(), nil, logger.Discard())
	for i := 0; i < DefaultListLimit+5; i++ {
		_, err := svc.Create(context.Background(), Owner{ID: "user-1"}, details())
		require.NoError(t, err)
	}
	r := setupRouter(svc, "user-1")

	tests := []struct {
		query string
		want  int
	}{
		{"", DefaultListLimit},
		{"?limit=abc", DefaultListLimit},
		{"?limit=0", DefaultListLimit},
		{"?limit=500", DefaultListLimit},
		{"?limit=5", 5},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := request(r, http.MethodGet, "/api/readings"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)
			var list ListResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
			assert.Equal(t, tt.want, list.Count)
		})
	}
}

func TestHandler_OnCreate(t *testing.T) {
	svc := NewService(newMemStore(), insights.NewStaticGenerator(), nil, logger.Discard())
	h := NewHandler(svc, logger.Discard())
	var created []*Reading
	h.OnCreate(func(r *Reading) { created = append(created, r) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Next()
	})
	h.RegisterRoutes(api)

	w := request(r, http.MethodPost, "/api/readings", `{"date":"1990-08-14","time":"25:00","city":"Lisbon","country":"Portugal"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, created)

	w = request(r, http.MethodPost, "/api/readings", `{"date":"1990-08-14","time":"06:30","city":"Lisbon","country":"Portugal"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, created, 1)
	assert.Equal(t, "user-1", created[0].UserID)
}
