package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/loykin/appvisor/internal/registry"
	"github.com/loykin/appvisor/internal/supervisor"
)

// stubProber scripts port answers: queued values in next are consumed
// first, then bound is the steady answer.
type stubProber struct {
	mu    sync.Mutex
	bound bool
	next  []bool
}

func (p *stubProber) IsBound(string, int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.next) > 0 {
		v := p.next[0]
		p.next = p.next[1:]
		return v
	}
	return p.bound
}

func (p *stubProber) OwnerPID(string, int) (int32, error) {
	return 0, errors.New("not scripted")
}

func (p *stubProber) set(bound bool, next ...bool) {
	p.mu.Lock()
	p.bound = bound
	p.next = append([]bool(nil), next...)
	p.mu.Unlock()
}

func newTestRouter(t *testing.T) (http.Handler, *registry.Store, *supervisor.Supervisor, *stubProber) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test placeholder commands require a unix shell environment")
	}
	gin.SetMode(gin.TestMode)

	store, err := registry.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sup := supervisor.New(store, supervisor.Config{
		LivenessAttempts: 5,
		LivenessInterval: 10 * time.Millisecond,
		StopWait:         200 * time.Millisecond,
		StopPollInterval: 10 * time.Millisecond,
		EscalationWait:   100 * time.Millisecond,
	})
	p := &stubProber{}
	sup.SetProber(p)
	sup.SetCommandFunc(func(registry.Definition) *exec.Cmd {
		return exec.Command("sleep", "60")
	})
	t.Cleanup(func() {
		p.set(true, true, false)
		sup.Shutdown(context.Background())
	})

	return NewRouter(sup, store, "/api").Handler(), store, sup, p
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func appPayload(t *testing.T, name string, port int) registry.Definition {
	t.Helper()
	return registry.Definition{
		Name: name, Path: t.TempDir(), Entry: "app.main:app",
		Host: "127.0.0.1", Port: port, Enabled: true,
	}
}

func TestCreateListGet(t *testing.T) {
	h, _, _, _ := newTestRouter(t)

	w := doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "billing", 9001))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[registry.Definition](t, w)
	require.Positive(t, created.ID)

	w = doJSON(t, h, http.MethodGet, "/api/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]supervisor.Status](t, w)
	require.Len(t, list, 1)
	require.Equal(t, "billing", list[0].Name)
	require.Equal(t, supervisor.StateStopped, list[0].State)

	w = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/apps/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[registry.Definition](t, w)
	require.Equal(t, created.ID, got.ID)
}

func TestCreateInvalidDefinition(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	bad := registry.Definition{Name: "x", Path: "/nonexistent/appvisor", Entry: "nope", Port: 0}
	w := doJSON(t, h, http.MethodPost, "/api/apps", bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDuplicateName(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "dup", 9001)).Code)
	require.Equal(t, http.StatusConflict, doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "dup", 9002)).Code)
}

func TestStartStatusLogsStop(t *testing.T) {
	h, _, _, p := newTestRouter(t)
	created := decode[registry.Definition](t, doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "web", 9001)))

	p.set(true, false)
	w := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/apps/%d/start", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[supervisor.StartResult](t, w)
	require.Equal(t, supervisor.StateRunning, res.Status.State)
	require.NotEmpty(t, res.LogTail)

	w = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/apps/%d/status", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[supervisor.Status](t, w)
	require.Equal(t, supervisor.StateRunning, st.State)
	require.True(t, st.Serving)

	w = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/apps/%d/logs", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[logsResp](t, w)
	require.NotEmpty(t, logs.Lines)

	p.set(false, true)
	w = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/apps/%d/stop", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[supervisor.Status](t, w)
	require.Equal(t, supervisor.StateStopped, st.State)
}

func TestStartUnknownApp(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	require.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodPost, "/api/apps/99/start", nil).Code)
}

func TestStartPortInUse(t *testing.T) {
	h, _, _, p := newTestRouter(t)
	created := decode[registry.Definition](t, doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "web", 9001)))
	p.set(true)
	require.Equal(t, http.StatusConflict, doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/apps/%d/start", created.ID), nil).Code)
}

func TestStopNotRunning(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	created := decode[registry.Definition](t, doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "web", 9001)))
	require.Equal(t, http.StatusConflict, doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/apps/%d/stop", created.ID), nil).Code)
}

func TestUpdateRejectedWhileRunning(t *testing.T) {
	h, _, _, p := newTestRouter(t)
	created := decode[registry.Definition](t, doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "web", 9001)))

	p.set(true, false)
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/apps/%d/start", created.ID), nil).Code)

	created.Port = 9002
	w := doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/apps/%d", created.ID), created)
	require.Equal(t, http.StatusConflict, w.Code)

	p.set(false, true, true, false)
	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/apps/%d/stop", created.ID), nil).Code)

	w = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/apps/%d", created.ID), created)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 9002, decode[registry.Definition](t, w).Port)
}

func TestDeleteApp(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	created := decode[registry.Definition](t, doJSON(t, h, http.MethodPost, "/api/apps", appPayload(t, "web", 9001)))

	require.Equal(t, http.StatusOK, doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/apps/%d", created.ID), nil).Code)
	require.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/apps/%d", created.ID), nil).Code)
	require.Equal(t, http.StatusNotFound, doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/apps/%d", created.ID), nil).Code)
}

func TestImportEndpoint(t *testing.T) {
	h, store, _, _ := newTestRouter(t)
	dir := t.TempDir()
	yamlPath := filepath.Join(t.TempDir(), "apps.yaml")
	content := fmt.Sprintf("apps:\n  billing:\n    path: %s\n    entry: billing.main:app\n    default_port: 9001\n", dir)
	require.NoError(t, os.WriteFile(yamlPath, []byte(content), 0o600))

	w := doJSON(t, h, http.MethodPost, "/api/apps/import", importReq{Path: yamlPath})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"billing"}, decode[importResp](t, w).Imported)

	_, err := store.GetByName(context.Background(), "billing")
	require.NoError(t, err)
}

func TestImportMissingPath(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	require.Equal(t, http.StatusBadRequest, doJSON(t, h, http.MethodPost, "/api/apps/import", importReq{}).Code)
}

func TestInvalidAppID(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	require.Equal(t, http.StatusBadRequest, doJSON(t, h, http.MethodGet, "/api/apps/abc/status", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _, _ := newTestRouter(t)
	w := doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
