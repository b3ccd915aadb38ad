package httpserver

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/openroster/roster/internal/auth/password"
	"github.com/openroster/roster/internal/auth/token"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
)

func (s *Server) addUserRoutes(r *gin.Engine) {
	r.POST("/api/users", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		var in struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := c.BindJSON(&in); err != nil ||
			strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" {
			s.respondError(c, http.StatusBadRequest, "name, email and password are required")
			return
		}
		if in.Role == "" {
			in.Role = usersgorm.RoleUser
		}
		if !usersgorm.ValidRole(in.Role) {
			s.respondError(c, http.StatusBadRequest, "unknown role")
			return
		}
		hash, err := password.Hash(in.Password)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		u := &usersgorm.UserRecord{Name: in.Name, Email: in.Email, PasswordHash: hash, Role: in.Role, Active: true}
		if err := s.users.Create(c.Request.Context(), u); err != nil {
			// unique index on email is the usual culprit
			s.respondError(c, http.StatusBadRequest, "could not create user")
			return
		}
		s.JSON(c, http.StatusCreated, u.Public())
	})

	r.GET("/api/users", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		limit, offset := pagination(c)
		users, total, err := s.users.List(c.Request.Context(),
			c.Query("search"), c.Query("active"), c.Query("role"), limit, offset)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]usersgorm.Public, 0, len(users))
		for i := range users {
			out = append(out, users[i].Public())
		}
		s.JSON(c, http.StatusOK, gin.H{"users": out, "total": total})
	})

	r.GET("/api/users/:id", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		targetID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		u, err := s.users.Get(c.Request.Context(), targetID)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "user not found")
			return
		}
		s.JSON(c, http.StatusOK, u.Public())
	})

	// self-service update: name and/or password
	r.PATCH("/api/users/:id", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		targetID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		if targetID != id.UserID {
			s.respondError(c, http.StatusForbidden, "you may only update your own account")
			return
		}
		var in struct {
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "invalid payload")
			return
		}
		u, err := s.users.Get(c.Request.Context(), targetID)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "user not found")
			return
		}
		if strings.TrimSpace(in.Name) != "" {
			u.Name = in.Name
		}
		if in.Password != "" {
			hash, err := password.Hash(in.Password)
			if err != nil {
				s.respondError(c, http.StatusInternalServerError, "internal error")
				return
			}
			u.PasswordHash = hash
		}
		if err := s.users.Save(c.Request.Context(), u); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, u.Public())
	})

	// admin update: active flag and role
	r.PATCH("/api/users/:id/admin", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		targetID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		var in struct {
			Active *bool   `json:"active"`
			Role   *string `json:"role"`
		}
		if err := c.BindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "invalid payload")
			return
		}
		u, err := s.users.Get(c.Request.Context(), targetID)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "user not found")
			return
		}
		if in.Active != nil {
			u.Active = *in.Active
		}
		if in.Role != nil {
			if !usersgorm.ValidRole(*in.Role) {
				s.respondError(c, http.StatusBadRequest, "unknown role")
				return
			}
			u.Role = *in.Role
		}
		if err := s.users.Save(c.Request.Context(), u); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, u.Public())
	})

	r.DELETE("/api/users/:id", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		targetID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		if _, err := s.users.Get(c.Request.Context(), targetID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.respondError(c, http.StatusNotFound, "user not found")
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		authored, err := s.messaging.HasAuthoredMessages(c.Request.Context(), targetID)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		if authored {
			s.respondError(c, http.StatusBadRequest, "user has authored messages and cannot be deleted; deactivate instead")
			return
		}
		if err := s.users.Delete(c.Request.Context(), targetID); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"message": "user deleted"})
	})

	r.POST("/api/users/avatar", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "multipart field 'file' is required")
			return
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(fh.Filename), "."))
		if ext == "" {
			ext = "png"
		}
		src, err := fh.Open()
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "unreadable upload")
			return
		}
		defer src.Close()
		key := itoa(id.UserID) + "." + ext
		if err := s.files.Put(c.Request.Context(), key, src, fh.Header.Get("Content-Type")); err != nil {
			s.respondError(c, http.StatusInternalServerError, "failed to store avatar")
			return
		}
		u, err := s.users.Get(c.Request.Context(), id.UserID)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "user not found")
			return
		}
		avatarPath := "/api/files/" + key
		u.Avatar = &avatarPath
		if err := s.users.Save(c.Request.Context(), u); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		tok, err := s.jwtMgr.Sign(token.Identity{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role})
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"user": u.Public(), "token": tok})
	})

	r.DELETE("/api/users/avatar", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		u, err := s.users.Get(c.Request.Context(), id.UserID)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "user not found")
			return
		}
		if u.Avatar == nil {
			s.respondError(c, http.StatusBadRequest, "user has no avatar")
			return
		}
		key := strings.TrimPrefix(*u.Avatar, "/api/files/")
		// clear the DB reference even if the stored object is already gone
		_ = s.files.Delete(c.Request.Context(), key)
		u.Avatar = nil
		if err := s.users.Save(c.Request.Context(), u); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"user": u.Public()})
	})
}
