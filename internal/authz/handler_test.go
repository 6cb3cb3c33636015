package authz

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-platform/aegis/internal/roles"
)

func newTestRouter(t *testing.T, f *fixture) http.Handler {
	t.Helper()
	h := NewHandler(slog.New(slog.DiscardHandler), f.resolver, validator.New())
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func postCheck(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckEndpointAllows(t *testing.T) {
	f := newFixture(t, Config{})
	f.lookup.publicGlobal[roles.UserRangeGuest] = []roles.Candidate{
		{RoleID: 3, UserRange: roles.UserRangeGuest, ResRange: roles.ResRangeAllowAll,
			Priority: 10, Positivity: roles.PositivityAllow},
	}
	router := newTestRouter(t, f)

	rec := postCheck(t, router, checkRequest{ViewerID: 1, Items: []CheckItem{f.item()}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["allowed"])
}

func TestCheckEndpointDeniesWithItems(t *testing.T) {
	f := newFixture(t, Config{})
	router := newTestRouter(t, f)

	rec := postCheck(t, router, checkRequest{ViewerID: 1, Items: []CheckItem{f.item()}})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var problem struct {
		Status int `json:"status"`
		Items  []struct {
			ResType string `json:"res_type"`
			OpKey   string `json:"op_key"`
			Reason  string `json:"reason"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusForbidden, problem.Status)
	require.Len(t, problem.Items, 1)
	assert.Equal(t, "doc", problem.Items[0].ResType)
	assert.Equal(t, "read", problem.Items[0].OpKey)
	assert.Equal(t, "unauthorized", problem.Items[0].Reason)
}

func TestCheckEndpointValidatesBody(t *testing.T) {
	f := newFixture(t, Config{})
	router := newTestRouter(t, f)

	rec := postCheck(t, router, checkRequest{ViewerID: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader([]byte("{not json")))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}
