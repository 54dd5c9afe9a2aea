package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/watchdog/internal/config"
	"github.com/loykin/watchdog/internal/logbuf"
	"github.com/loykin/watchdog/internal/supervisor"
)

// Router exposes the supervisor's command surface over HTTP for the launcher
// shell and the CLI. It is meant to be bound to loopback only; there is no
// authentication and no remote-control support.
//
// Endpoints under /api/v1:
//
//	POST   /start      body: {"mode": "dev"|"production"} (optional)
//	POST   /stop
//	POST   /restart
//	POST   /build      build the dev tree, then start production
//	GET    /status
//	GET    /config
//	PATCH  /config     body: partial config document
//	GET    /crashes
//	DELETE /crashes
//	GET    /logs       query: limit=, category=
//	DELETE /logs
//	GET    /events     server-sent event stream
type Router struct {
	sup *supervisor.Supervisor
}

func NewRouter(sup *supervisor.Supervisor) *Router {
	return &Router{sup: sup}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	api := g.Group("/api/v1")
	api.POST("/start", r.handleStart)
	api.POST("/stop", r.handleStop)
	api.POST("/restart", r.handleRestart)
	api.POST("/build", r.handleBuild)
	api.GET("/status", r.handleStatus)
	api.GET("/config", r.handleGetConfig)
	api.PATCH("/config", r.handlePatchConfig)
	api.GET("/crashes", r.handleCrashes)
	api.DELETE("/crashes", r.handleClearCrashes)
	api.GET("/logs", r.handleLogs)
	api.DELETE("/logs", r.handleClearLogs)
	api.GET("/events", r.handleEvents)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, sup *supervisor.Supervisor) *http.Server {
	r := NewRouter(sup)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type startReq struct {
	Mode *config.Mode `json:"mode"`
}

func (r *Router) handleStart(c *gin.Context) {
	var req startReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	if req.Mode != nil && *req.Mode != config.ModeDev && *req.Mode != config.ModeProduction {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid mode: " + string(*req.Mode)})
		return
	}
	st, err := r.sup.Start(req.Mode)
	if err != nil {
		c.JSON(http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleStop(c *gin.Context) {
	st, err := r.sup.Stop()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleRestart(c *gin.Context) {
	st, err := r.sup.Restart()
	if err != nil {
		c.JSON(http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleBuild(c *gin.Context) {
	st, err := r.sup.BuildAndRun()
	if err != nil {
		c.JSON(http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.sup.Status())
}

func (r *Router) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, r.sup.Config())
}

func (r *Router) handlePatchConfig(c *gin.Context) {
	var patch config.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	cfg, err := r.sup.UpdateConfig(patch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (r *Router) handleCrashes(c *gin.Context) {
	c.JSON(http.StatusOK, r.sup.Crashes())
}

func (r *Router) handleClearCrashes(c *gin.Context) {
	if err := r.sup.ClearCrashes(); err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) handleLogs(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid limit: " + v})
			return
		}
		limit = n
	}
	category := logbuf.Category(c.Query("category"))
	c.JSON(http.StatusOK, r.sup.Logs(limit, category))
}

func (r *Router) handleClearLogs(c *gin.Context) {
	r.sup.ClearLogs()
	c.Status(http.StatusNoContent)
}
