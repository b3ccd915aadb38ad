package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openroster/roster/internal/auth/rbac"
	"github.com/openroster/roster/internal/auth/token"
	messaginggorm "github.com/openroster/roster/internal/infra/persistence/gorm/messaging"
	schedulesgorm "github.com/openroster/roster/internal/infra/persistence/gorm/schedules"
	tasksgorm "github.com/openroster/roster/internal/infra/persistence/gorm/tasks"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
	"github.com/openroster/roster/internal/objstore"
	msgsvc "github.com/openroster/roster/internal/service/messaging"
)

const identityKey = "identity"

// Config carries the listen address; everything else arrives as dependencies.
type Config struct {
	Addr string
}

type Server struct {
	cfg       Config
	users     *usersgorm.Repo
	tasks     *tasksgorm.Repo
	schedules *schedulesgorm.Repo
	messaging *msgsvc.Service
	files     objstore.Store
	jwtMgr    *token.Manager
	rbac      rbac.Policy
	engine    *gin.Engine
	httpSrv   *http.Server
}

func NewServer(cfg Config, db *gorm.DB, files objstore.Store, jwtMgr *token.Manager, policy rbac.Policy) *Server {
	s := &Server{
		cfg:       cfg,
		users:     usersgorm.NewRepo(db),
		tasks:     tasksgorm.NewRepo(db),
		schedules: schedulesgorm.NewRepo(db),
		files:     files,
		jwtMgr:    jwtMgr,
		rbac:      policy,
	}
	s.messaging = msgsvc.NewService(messaginggorm.NewRepo(db), s.users, files)
	s.engine = s.buildEngine()
	return s
}

func (s *Server) buildEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog(), s.cors())

	r.GET("/healthz", func(c *gin.Context) { s.JSON(c, http.StatusOK, gin.H{"status": "ok"}) })

	s.addAuthRoutes(r)
	s.addUserRoutes(r)
	s.addTaskRoutes(r)
	s.addScheduleRoutes(r)
	s.addMessagingRoutes(r)
	s.addFileRoutes(r)
	return r
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) Run() error {
	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: s.engine}
	slog.Info("http server listening", "addr", s.cfg.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ---------- middleware ----------

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("reqid", rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur", time.Since(start).Round(time.Millisecond).String(),
			"ip", c.ClientIP(),
			"reqid", c.GetString("reqid"),
		)
	}
}

func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ---------- auth helpers ----------

// auth extracts the identity from Authorization: Bearer <token>.
func (s *Server) auth(c *gin.Context) (token.Identity, bool) {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(token.Identity); ok {
			return id, true
		}
	}
	authz := c.GetHeader("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return token.Identity{}, false
	}
	id, err := s.jwtMgr.Verify(strings.TrimPrefix(authz, "Bearer "))
	if err != nil {
		return token.Identity{}, false
	}
	c.Set(identityKey, id)
	return id, true
}

// require authenticates the caller and gates the route by role policy.
// The route pattern (with :params) is what the policy matches against.
func (s *Server) require(c *gin.Context) (token.Identity, bool) {
	id, ok := s.auth(c)
	if !ok {
		s.respondError(c, http.StatusUnauthorized, "missing or invalid credentials")
		return token.Identity{}, false
	}
	if !s.rbac.CanHTTP(id.Role, c.FullPath(), c.Request.Method) {
		s.respondError(c, http.StatusForbidden, "insufficient role for this operation")
		return id, false
	}
	return id, true
}

// respondError writes the uniform error envelope.
func (s *Server) respondError(c *gin.Context, status int, message string) {
	type errBody struct {
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	}
	c.Abort()
	s.JSON(c, status, errBody{Message: message, RequestID: c.GetString("reqid")})
}

// respondServiceError maps the messaging service error kinds onto statuses.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, msgsvc.ErrValidation):
		s.respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, msgsvc.ErrForbidden):
		s.respondError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, msgsvc.ErrNotFound):
		s.respondError(c, http.StatusNotFound, err.Error())
	default:
		slog.Error("internal error", "err", err, "reqid", c.GetString("reqid"))
		s.respondError(c, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses the named decimal path parameter. A malformed id is a caller
// error: it responds 400 before any storage is touched.
func (s *Server) pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || v == 0 {
		s.respondError(c, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	return uint(v), true
}

func itoa(v uint) string { return strconv.FormatUint(uint64(v), 10) }

// pagination reads limit/offset query params with the listing defaults.
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
