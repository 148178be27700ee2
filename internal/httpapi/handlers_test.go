package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telehealth-platform/internal/audit"
	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/calls"
	"telehealth-platform/internal/config"
	"telehealth-platform/internal/media"
	"telehealth-platform/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalls map[string]calls.Call

func (f fakeCalls) Find(_ context.Context, callID string) (calls.Call, error) {
	c, ok := f[callID]
	if !ok {
		return calls.Call{}, calls.ErrNotFound
	}
	return c, nil
}

type fakeStats struct{}

func (fakeStats) Stats() media.Stats { return media.Stats{RoutingContexts: 2, Transports: 4} }

func withIdentity(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), userID, role))
		c.Next()
	}
}

func newTestHandlers(t *testing.T) (Handlers, *auth.Manager) {
	t.Helper()
	trail := audit.NewService(audit.NewMemoryRepo())
	ctx := context.Background()
	require.NoError(t, trail.LogTransition(ctx, audit.EventTypeCallInitiated, "call-1", "appt-1", "doc-1", rbac.RoleDoctor, "call initiated"))
	require.NoError(t, trail.LogTransition(ctx, audit.EventTypeCallAccepted, "call-1", "appt-1", "pat-1", rbac.RolePatient, "call accepted"))

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)
	users := auth.NewMemoryUsers()
	users.Add("pat-1", rbac.RolePatient)
	return Handlers{
		Calls: fakeCalls{
			"call-1": {CallID: "call-1", DoctorID: "doc-1", PatientID: "pat-1", Status: calls.StatusAccepted},
		},
		Audit:      trail,
		Tokens:     m,
		Users:      users,
		Media:      fakeStats{},
		ICEServers: []config.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}},
	}, m
}

func serve(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetCall(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandlers(t)

	cases := []struct {
		user, role string
		path       string
		want       int
	}{
		{"pat-1", rbac.RolePatient, "/v1/calls/call-1", http.StatusOK},
		{"doc-1", rbac.RoleDoctor, "/v1/calls/call-1", http.StatusOK},
		{"root", rbac.RoleAdmin, "/v1/calls/call-1", http.StatusOK},
		{"pat-2", rbac.RolePatient, "/v1/calls/call-1", http.StatusForbidden},
		{"pat-1", rbac.RolePatient, "/v1/calls/missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/v1/calls/:call_id", withIdentity(tc.user, tc.role), h.GetCall)
		w := serve(r, http.MethodGet, tc.path, nil)
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.user, tc.path)
	}

	r := gin.New()
	r.GET("/v1/calls/:call_id", withIdentity("pat-1", rbac.RolePatient), h.GetCall)
	w := serve(r, http.MethodGet, "/v1/calls/call-1", nil)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "call-1", body["callId"])
	assert.Equal(t, "accepted", body["status"])
}

func TestGetCallAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandlers(t)

	route := func(user, role string) *gin.Engine {
		r := gin.New()
		r.GET("/v1/calls/:call_id/audit", withIdentity(user, role), h.GetCallAudit)
		return r
	}

	w := serve(route("doc-1", rbac.RoleDoctor), http.MethodGet, "/v1/calls/call-1/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		CallID string        `json:"callId"`
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "call-1", body.CallID)
	require.Len(t, body.Events, 2)
	assert.Equal(t, audit.EventTypeCallInitiated, body.Events[0].Type)
	assert.Equal(t, "pat-1", body.Events[1].ActorUserID)

	w = serve(route("pat-2", rbac.RolePatient), http.MethodGet, "/v1/calls/call-1/audit", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = serve(route("root", rbac.RoleAdmin), http.MethodGet, "/v1/calls/missing/audit", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetICEServers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandlers(t)
	r := gin.New()
	r.GET("/v1/ice-servers", h.GetICEServers)

	w := serve(r, http.MethodGet, "/v1/ice-servers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ICEServers []config.ICEServer `json:"iceServers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.ICEServers, 1)
}

func TestMediaStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandlers(t)
	r := gin.New()
	r.GET("/v1/admin/media", h.MediaStats)

	w := serve(r, http.MethodGet, "/v1/admin/media", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Media media.Stats `json:"media"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Media.Transports)
}

func TestIssueToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, m := newTestHandlers(t)
	r := gin.New()
	r.POST("/v1/auth/token", h.IssueToken)

	w := serve(r, http.MethodPost, "/v1/auth/token", []byte(`{"user_id":"pat-1","role":"patient"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var pair map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	claims, err := m.Verify(pair["access_token"], auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "pat-1", claims.UserID)

	for body, want := range map[string]int{
		`{"user_id":"pat-1"}`:                  http.StatusBadRequest,
		`not json`:                             http.StatusBadRequest,
		`{"user_id":"pat-1","role":"wizard"}`:  http.StatusUnauthorized,
		`{"user_id":"ghost","role":"patient"}`: http.StatusUnauthorized,
		`{"user_id":"pat-1","role":"doctor"}`:  http.StatusUnauthorized,
	} {
		w := serve(r, http.MethodPost, "/v1/auth/token", []byte(body))
		assert.Equal(t, want, w.Code, body)
	}
}
