package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loykin/watchdog/internal/logbuf"
	"github.com/loykin/watchdog/internal/store"
	"github.com/loykin/watchdog/internal/supervisor"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sup := supervisor.New(supervisor.Options{
		Logger:  logger,
		Store:   store.New(t.TempDir(), logger),
		Watches: []logbuf.Watch{},
	})
	t.Cleanup(sup.Shutdown)
	return NewRouter(sup).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "GET", "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st supervisor.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, supervisor.StateIdle, st.Status)
	require.Nil(t, st.PID)
}

func TestConfigGetAndPatch(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "PATCH", "/api/v1/config", `{"maxRestarts":7,"targetDevPath":"/src/heka"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doReq(t, h, "GET", "/api/v1/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	require.EqualValues(t, 7, cfg["maxRestarts"])
	require.Equal(t, "/src/heka", cfg["targetDevPath"])
	// untouched fields keep their defaults
	require.EqualValues(t, 3001, cfg["healthCheckPort"])
}

func TestConfigPatchRejectsBadJSON(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "PATCH", "/api/v1/config", `{"maxRestarts":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRejectsInvalidMode(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "POST", "/api/v1/start", `{"mode":"turbo"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartWithoutPathsFails(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "POST", "/api/v1/start", "")
	require.Equal(t, http.StatusConflict, w.Code)
	var er map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &er))
	require.Contains(t, er["error"], "targetDevPath")
}

func TestLogsQueryAndClear(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "GET", "/api/v1/logs?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = doReq(t, h, "GET", "/api/v1/logs?limit=nope", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doReq(t, h, "DELETE", "/api/v1/logs", "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestCrashesEmptyAndClear(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "GET", "/api/v1/crashes", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = doReq(t, h, "DELETE", "/api/v1/crashes", "")
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestStopIsAlwaysAccepted(t *testing.T) {
	h := testRouter(t)
	w := doReq(t, h, "POST", "/api/v1/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st supervisor.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, supervisor.StateStopped, st.Status)
}
