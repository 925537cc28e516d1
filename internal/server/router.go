package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/appvisor/internal/metrics"
	"github.com/loykin/appvisor/internal/registry"
	"github.com/loykin/appvisor/internal/supervisor"
)

// Router provides embeddable HTTP handlers for managing applications.
// Endpoints under {basePath}:
//
//	GET    /apps               list definitions with derived state
//	POST   /apps               register a definition
//	GET    /apps/:id           fetch one definition
//	PUT    /apps/:id           update (rejected while the app is active)
//	DELETE /apps/:id           delete (rejected while the app is active)
//	POST   /apps/import        upsert definitions from an apps.yaml file
//	POST   /apps/:id/start     start and confirm liveness
//	POST   /apps/:id/stop      graceful stop with escalation
//	POST   /apps/:id/restart   stop-then-start
//	GET    /apps/:id/status    derived status (reconciles against the port)
//	GET    /apps/:id/logs      captured output snapshot
//
// Prometheus metrics are served at /metrics regardless of basePath.
type Router struct {
	sup      *supervisor.Supervisor
	store    *registry.Store
	basePath string
}

func NewRouter(sup *supervisor.Supervisor, store *registry.Store, basePath string) *Router {
	return &Router{sup: sup, store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	group := g.Group(r.basePath)
	group.GET("/apps", r.handleList)
	group.POST("/apps", r.handleCreate)
	group.POST("/apps/import", r.handleImport)
	group.GET("/apps/:id", r.handleGet)
	group.PUT("/apps/:id", r.handleUpdate)
	group.DELETE("/apps/:id", r.handleDelete)
	group.POST("/apps/:id/start", r.handleStart)
	group.POST("/apps/:id/stop", r.handleStop)
	group.POST("/apps/:id/restart", r.handleRestart)
	group.GET("/apps/:id/status", r.handleStatus)
	group.GET("/apps/:id/logs", r.handleLogs)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, store *registry.Store) (*http.Server, error) {
	r := NewRouter(sup, store, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleList(c *gin.Context) {
	list, err := r.sup.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

func (r *Router) handleCreate(c *gin.Context) {
	var def registry.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	created, err := r.store.Create(c.Request.Context(), def)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, created)
}

func (r *Router) handleGet(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	def, err := r.store.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, def)
}

func (r *Router) handleUpdate(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	if !r.requireInactive(c, id) {
		return
	}
	var def registry.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	def.ID = id
	updated, err := r.store.Update(c.Request.Context(), def)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, updated)
}

func (r *Router) handleDelete(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	if !r.requireInactive(c, id) {
		return
	}
	if err := r.store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type importReq struct {
	Path string `json:"path"`
}

type importResp struct {
	Imported []string `json:"imported"`
}

func (r *Router) handleImport(c *gin.Context) {
	var req importReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Path == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "path required"})
		return
	}
	names, err := registry.ImportYAML(c.Request.Context(), r.store, req.Path)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, importResp{Imported: names})
}

func (r *Router) handleStart(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	res, err := r.sup.Start(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleStop(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	st, err := r.sup.Stop(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleRestart(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	res, err := r.sup.Restart(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleStatus(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	st, err := r.sup.Status(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

type logsResp struct {
	Lines []string `json:"lines"`
}

func (r *Router) handleLogs(c *gin.Context) {
	id, ok := appID(c)
	if !ok {
		return
	}
	lines, err := r.sup.Logs(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, logsResp{Lines: lines})
}

// requireInactive rejects registry mutations while the app has a live
// process, so a running app never diverges from its stored definition.
func (r *Router) requireInactive(c *gin.Context, id int64) bool {
	st, err := r.sup.Status(c.Request.Context(), id)
	if err != nil {
		if supervisor.KindOf(err) == supervisor.KindNotFound {
			writeError(c, err)
			return false
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return false
	}
	if st.State == supervisor.StateRunning || st.State == supervisor.StateStarting || st.State == supervisor.StateStopping {
		writeJSON(c, http.StatusConflict, errorResp{Error: "app is " + string(st.State) + "; stop it before editing"})
		return false
	}
	return true
}

func appID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid app id"})
		return 0, false
	}
	return id, true
}
