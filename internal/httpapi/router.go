// Package httpapi is the HTTP side of the service: the websocket
// endpoint, health, thread history and admin stats.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/shaadimantra/internal/app"
	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/config"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/logger"
	"github.com/oggyb/shaadimantra/internal/utils/pagination"
)

// NewRouter builds the gin engine.
//
// Routes:
//   - GET /healthz                            database and Redis reachability
//   - GET /ws                                 realtime socket (token in header or ?token=)
//   - GET /api/v1/connections/:id/messages    thread history, oldest first
//   - GET /api/v1/admin/users/:id/stats       per-member aggregates (admin)
//   - GET /api/v1/admin/overview              profile counts per status (admin)
func NewRouter(a *app.AppContext) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(a))

	h := &handlers{app: a}
	r.GET("/healthz", h.health)

	authed := auth.Gin(a.Verifier)
	r.GET("/ws", authed, a.Hub.ServeWS())

	api := r.Group("/api/v1", authed)
	api.GET("/connections/:id/messages", h.history)

	adm := api.Group("/admin", auth.RequireAdmin())
	adm.GET("/users/:id/stats", h.userStats)
	adm.GET("/overview", h.overview)

	return r
}

// Serve runs handler on the configured address until ctx is done.
func Serve(ctx context.Context, cfg *config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handlers struct {
	app *app.AppContext
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	healthy := true

	if sqlDB, err := h.app.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unreachable"
		healthy = false
	}
	if h.app.RedisCache != nil {
		checks["redis"] = "ok"
		if err := h.app.RedisCache.Ping(ctx); err != nil {
			checks["redis"] = "unreachable"
			healthy = false
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func (h *handlers) history(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	connID, ok := pathID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := h.app.Chat.History(c.Request.Context(), p.UserID, connID,
		pagination.Page{Token: c.Query("pagination_token"), Limit: limit})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": page.Messages, "next_pagination_token": page.Next})
}

func (h *handlers) userStats(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	userID, ok := pathID(c)
	if !ok {
		return
	}
	out, err := h.app.Stats.ForUser(c.Request.Context(), p, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) overview(c *gin.Context) {
	p, _ := auth.FromContext(c.Request.Context())
	counts, err := h.app.Stats.Overview(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": counts, "online": h.app.Hub.Online()})
}

func (h *handlers) fail(c *gin.Context, err error) {
	code, msg := svcErr.HTTPStatus(logger.FromContext(c.Request.Context(), h.app.Logger), err)
	c.AbortWithStatusJSON(code, gin.H{"error": gin.H{"code": string(svcErr.KindOf(err)), "message": msg}})
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": string(svcErr.KindInvalidOperation), "message": "id must be a positive integer"},
		})
		return 0, false
	}
	return id, true
}

func requestLog(a *app.AppContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		l := a.Logger.With("http_method", c.Request.Method, "path", c.FullPath())
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), l))
		c.Next()
		l.Debug("http request", "status", c.Writer.Status(), logger.Since(start))
	}
}
