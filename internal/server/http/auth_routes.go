package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/openroster/roster/internal/auth/password"
	"github.com/openroster/roster/internal/auth/token"
)

func (s *Server) addAuthRoutes(r *gin.Engine) {
	r.POST("/api/auth/login", func(c *gin.Context) {
		var in struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&in); err != nil || strings.TrimSpace(in.Email) == "" || in.Password == "" {
			s.respondError(c, http.StatusBadRequest, "email and password are required")
			return
		}
		u, err := s.users.GetActiveByEmail(c.Request.Context(), in.Email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.respondError(c, http.StatusUnauthorized, "invalid email or password")
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		if !password.Verify(u.PasswordHash, in.Password) {
			s.respondError(c, http.StatusUnauthorized, "invalid email or password")
			return
		}
		tok, err := s.jwtMgr.Sign(token.Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role})
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"token": tok, "user": u.Public()})
	})

	r.GET("/api/auth/me", func(c *gin.Context) {
		id, ok := s.auth(c)
		if !ok {
			s.respondError(c, http.StatusUnauthorized, "missing or invalid credentials")
			return
		}
		u, err := s.users.Get(c.Request.Context(), id.UserID)
		if err != nil {
			s.respondError(c, http.StatusUnauthorized, "account no longer exists")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"user": u.Public()})
	})
}
