package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/metrics"
)

func serve(t *testing.T, h *HTTPHandler, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func newHTTP(svc *services, pinger Pinger) *HTTPHandler {
	return NewHTTPHandler(svc.router, svc.escalation, svc.override, pinger, metrics.New().Handler(), logger.Nop())
}

func TestHTTPHealth(t *testing.T) {
	code, body := serve(t, newHTTP(newServices(), stubPinger{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = serve(t, newHTTP(newServices(), stubPinger{err: stderrors.New("db down")}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestHTTPMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	newHTTP(newServices(), nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHTTPAutoApprove(t *testing.T) {
	code, body := serve(t, newHTTP(newServices(), nil), http.MethodPost, "/api/v1/requisitions/req-small/process", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["auto_approved"])
	assert.Equal(t, "AUTO", body["approval_level"])
}

func TestHTTPDecideFlow(t *testing.T) {
	h := newHTTP(newServices(), nil)

	code, body := serve(t, h, http.MethodPost, "/api/v1/requisitions/req-sup/process", "")
	require.Equal(t, http.StatusOK, code)
	approvalID := body["approval_id"].(string)

	code, body = serve(t, h, http.MethodGet, "/api/v1/approvals/pending?user_id=sup-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["approvals"], 1)

	code, body = serve(t, h, http.MethodPost, "/api/v1/approvals/"+approvalID+"/decide", `{"actor_id":"pm-1","approved":true}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	code, body = serve(t, h, http.MethodPost, "/api/v1/approvals/"+approvalID+"/decide", `{"actor_id":"sup-1","approved":true}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["can_proceed"])

	code, _ = serve(t, h, http.MethodPost, "/api/v1/approvals/"+approvalID+"/decide", `{"actor_id":"sup-1","approved":true}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestHTTPBadBody(t *testing.T) {
	rec := httptest.NewRecorder()
	newHTTP(newServices(), nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/approvals/x/decide", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPPendingRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	newHTTP(newServices(), nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/approvals/pending", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
