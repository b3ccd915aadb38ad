package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	tasksgorm "github.com/openroster/roster/internal/infra/persistence/gorm/tasks"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
)

func (s *Server) addTaskRoutes(r *gin.Engine) {
	r.GET("/api/tasks", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		limit, offset := pagination(c)
		tasks, total, err := s.tasks.List(c.Request.Context(), c.Query("search"), limit, offset)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]gin.H, 0, len(tasks))
		for i := range tasks {
			out = append(out, taskView(&tasks[i]))
		}
		s.JSON(c, http.StatusOK, gin.H{"tasks": out, "total": total})
	})

	r.GET("/api/tasks/:id", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		taskID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		t, err := s.tasks.Get(c.Request.Context(), taskID)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "task not found")
			return
		}
		s.JSON(c, http.StatusOK, taskView(t))
	})

	r.POST("/api/tasks", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		var in struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Status      string `json:"status"`
		}
		if err := c.BindJSON(&in); err != nil || strings.TrimSpace(in.Name) == "" {
			s.respondError(c, http.StatusBadRequest, "name is required")
			return
		}
		if in.Status == "" {
			in.Status = tasksgorm.StatusPending
		}
		if !tasksgorm.ValidStatus(in.Status) {
			s.respondError(c, http.StatusBadRequest, "unknown status")
			return
		}
		t := &tasksgorm.TaskRecord{Name: in.Name, Description: in.Description, Status: in.Status, OwnerID: id.UserID}
		if err := s.tasks.Create(c.Request.Context(), t); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusCreated, taskView(t))
	})

	r.PATCH("/api/tasks/:id", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		taskID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		t, err := s.tasks.Get(c.Request.Context(), taskID)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "task not found")
			return
		}
		// leaders may only edit their own tasks; admins may edit any
		if id.Role != usersgorm.RoleAdmin && t.OwnerID != id.UserID {
			s.respondError(c, http.StatusForbidden, "you may only edit your own tasks")
			return
		}
		var in struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Status      string `json:"status"`
		}
		if err := c.BindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "invalid payload")
			return
		}
		if strings.TrimSpace(in.Name) != "" {
			t.Name = in.Name
		}
		if in.Description != "" {
			t.Description = in.Description
		}
		if in.Status != "" {
			if !tasksgorm.ValidStatus(in.Status) {
				s.respondError(c, http.StatusBadRequest, "unknown status")
				return
			}
			t.Status = in.Status
		}
		if err := s.tasks.Save(c.Request.Context(), t); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, taskView(t))
	})

	r.DELETE("/api/tasks/:id", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		taskID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		if _, err := s.tasks.Get(c.Request.Context(), taskID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.respondError(c, http.StatusNotFound, "task not found")
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		if err := s.tasks.Delete(c.Request.Context(), taskID); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"message": "task deleted"})
	})
}

func taskView(t *tasksgorm.TaskRecord) gin.H {
	v := gin.H{
		"id":          t.ID,
		"name":        t.Name,
		"description": t.Description,
		"status":      t.Status,
		"ownerId":     t.OwnerID,
		"createdAt":   t.CreatedAt,
		"updatedAt":   t.UpdatedAt,
	}
	if t.ScheduleID != nil {
		v["scheduleId"] = *t.ScheduleID
	}
	return v
}
