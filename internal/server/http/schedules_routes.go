package httpserver

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	schedulesgorm "github.com/openroster/roster/internal/infra/persistence/gorm/schedules"
	"github.com/openroster/roster/internal/objstore"
)

func (s *Server) addScheduleRoutes(r *gin.Engine) {
	r.POST("/api/schedules", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		var in struct {
			Name        string    `json:"name"`
			Description string    `json:"description"`
			StartTime   time.Time `json:"startTime"`
			EndTime     time.Time `json:"endTime"`
			UserIDs     []uint    `json:"userIds"`
			TaskIDs     []uint    `json:"taskIds"`
		}
		if err := c.BindJSON(&in); err != nil || strings.TrimSpace(in.Name) == "" {
			s.respondError(c, http.StatusBadRequest, "name, startTime and endTime are required")
			return
		}
		if !in.EndTime.After(in.StartTime) {
			s.respondError(c, http.StatusBadRequest, "endTime must be after startTime")
			return
		}
		sch := &schedulesgorm.ScheduleRecord{Name: in.Name, Description: in.Description, StartTime: in.StartTime, EndTime: in.EndTime}
		if err := s.schedules.Create(c.Request.Context(), sch, in.UserIDs); err != nil {
			s.respondError(c, http.StatusBadRequest, "could not create schedule")
			return
		}
		if err := s.tasks.AttachToSchedule(c.Request.Context(), sch.ID, in.TaskIDs); err != nil {
			s.respondError(c, http.StatusBadRequest, "could not link tasks")
			return
		}
		v, err := s.scheduleView(c.Request.Context(), sch)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusCreated, v)
	})

	r.GET("/api/schedules", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		limit, offset := pagination(c)
		scheds, total, err := s.schedules.List(c.Request.Context(), limit, offset)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]gin.H, 0, len(scheds))
		for i := range scheds {
			v, err := s.scheduleView(c.Request.Context(), &scheds[i])
			if err != nil {
				s.respondError(c, http.StatusInternalServerError, "internal error")
				return
			}
			out = append(out, v)
		}
		s.JSON(c, http.StatusOK, gin.H{"schedules": out, "total": total})
	})

	r.GET("/api/schedules/my", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		scheds, err := s.schedules.ListByUser(c.Request.Context(), id.UserID)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		out := make([]gin.H, 0, len(scheds))
		for i := range scheds {
			v, err := s.scheduleView(c.Request.Context(), &scheds[i])
			if err != nil {
				s.respondError(c, http.StatusInternalServerError, "internal error")
				return
			}
			out = append(out, v)
		}
		s.JSON(c, http.StatusOK, gin.H{"schedules": out})
	})

	r.GET("/api/schedules/:id", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		sch, err := s.schedules.Get(c.Request.Context(), sid)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "schedule not found")
			return
		}
		v, err := s.scheduleView(c.Request.Context(), sch)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, v)
	})

	r.PATCH("/api/schedules/:id", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		sch, err := s.schedules.Get(c.Request.Context(), sid)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "schedule not found")
			return
		}
		var in struct {
			Name        string     `json:"name"`
			Description string     `json:"description"`
			StartTime   *time.Time `json:"startTime"`
			EndTime     *time.Time `json:"endTime"`
			UserIDs     *[]uint    `json:"userIds"`
			TaskIDs     *[]uint    `json:"taskIds"`
		}
		if err := c.BindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "invalid payload")
			return
		}
		if strings.TrimSpace(in.Name) != "" {
			sch.Name = in.Name
		}
		if in.Description != "" {
			sch.Description = in.Description
		}
		if in.StartTime != nil {
			sch.StartTime = *in.StartTime
		}
		if in.EndTime != nil {
			sch.EndTime = *in.EndTime
		}
		if !sch.EndTime.After(sch.StartTime) {
			s.respondError(c, http.StatusBadRequest, "endTime must be after startTime")
			return
		}
		if err := s.schedules.Save(c.Request.Context(), sch); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		// replace-all semantics when the caller provides assignment lists
		if in.UserIDs != nil {
			if err := s.schedules.ReplaceUsers(c.Request.Context(), sch.ID, *in.UserIDs); err != nil {
				s.respondError(c, http.StatusBadRequest, "could not update assigned users")
				return
			}
		}
		if in.TaskIDs != nil {
			if err := s.tasks.DetachFromSchedule(c.Request.Context(), sch.ID); err != nil {
				s.respondError(c, http.StatusInternalServerError, "internal error")
				return
			}
			if err := s.tasks.AttachToSchedule(c.Request.Context(), sch.ID, *in.TaskIDs); err != nil {
				s.respondError(c, http.StatusBadRequest, "could not link tasks")
				return
			}
		}
		v, err := s.scheduleView(c.Request.Context(), sch)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, v)
	})

	r.DELETE("/api/schedules/:id", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		if _, err := s.schedules.Get(c.Request.Context(), sid); err != nil {
			s.respondError(c, http.StatusNotFound, "schedule not found")
			return
		}
		if err := s.tasks.DetachFromSchedule(c.Request.Context(), sid); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		if err := s.schedules.Delete(c.Request.Context(), sid); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"message": "schedule deleted"})
	})

	r.POST("/api/schedules/:id/users/:userId", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		uid, ok := s.pathID(c, "userId")
		if !ok {
			return
		}
		if _, err := s.schedules.Get(c.Request.Context(), sid); err != nil {
			s.respondError(c, http.StatusNotFound, "schedule not found")
			return
		}
		if _, err := s.users.Get(c.Request.Context(), uid); err != nil {
			s.respondError(c, http.StatusNotFound, "user not found")
			return
		}
		var in struct {
			Skill string `json:"skill"`
		}
		_ = c.BindJSON(&in)
		if err := s.schedules.AddUser(c.Request.Context(), sid, uid, in.Skill); err != nil {
			s.respondError(c, http.StatusBadRequest, "user is already assigned to this schedule")
			return
		}
		s.JSON(c, http.StatusCreated, gin.H{"scheduleId": sid, "userId": uid, "skill": in.Skill})
	})

	r.DELETE("/api/schedules/:id/users/:userId", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		uid, ok := s.pathID(c, "userId")
		if !ok {
			return
		}
		if err := s.schedules.RemoveUser(c.Request.Context(), sid, uid); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.respondError(c, http.StatusNotFound, "user is not assigned to this schedule")
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"message": "user removed from schedule"})
	})

	// upload broadcasts the file to every assigned user via messaging
	r.POST("/api/schedules/:id/upload", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		sch, err := s.schedules.Get(c.Request.Context(), sid)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "schedule not found")
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "multipart field 'file' is required")
			return
		}
		src, err := fh.Open()
		if err != nil {
			s.respondError(c, http.StatusBadRequest, "unreadable upload")
			return
		}
		defer src.Close()
		originalName := filepath.Base(fh.Filename)
		mime := fh.Header.Get("Content-Type")
		key := uuid.NewString() + "-" + originalName
		if err := s.files.Put(c.Request.Context(), key, src, mime); err != nil {
			s.respondError(c, http.StatusInternalServerError, "failed to store file")
			return
		}
		sch.AttachedFile = &key
		sch.AttachedFileName = &originalName
		sch.AttachedFileMime = &mime
		if err := s.schedules.Save(c.Request.Context(), sch); err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		// fan out: one conversation per assigned user, reused on repeat uploads
		assignments, err := s.schedules.Assignments(c.Request.Context(), sch.ID)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		subject := "Schedule: " + sch.Name
		notified := 0
		for _, a := range assignments {
			if a.UserID == id.UserID {
				continue
			}
			conv, err := s.messaging.FindOrCreateConversation(c.Request.Context(), subject, []uint{id.UserID, a.UserID})
			if err != nil {
				s.respondError(c, http.StatusInternalServerError, "failed to notify assigned users")
				return
			}
			if _, err := s.messaging.AttachStoredFile(c.Request.Context(), conv.ID, id.UserID, originalName, key, mime); err != nil {
				s.respondError(c, http.StatusInternalServerError, "failed to notify assigned users")
				return
			}
			notified++
		}
		s.JSON(c, http.StatusCreated, gin.H{"fileName": key, "notified": notified})
	})

	r.GET("/api/schedules/:id/uploaded-file", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		sch, err := s.schedules.Get(c.Request.Context(), sid)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "schedule not found")
			return
		}
		if sch.AttachedFile == nil {
			s.respondError(c, http.StatusNotFound, "schedule has no attached file")
			return
		}
		body, attrs, err := s.files.Open(c.Request.Context(), *sch.AttachedFile)
		if err != nil {
			if errors.Is(err, objstore.ErrNotExist) {
				s.respondError(c, http.StatusNotFound, "file is missing from storage")
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		defer body.Close()
		mime := attrs.ContentType
		if sch.AttachedFileMime != nil && *sch.AttachedFileMime != "" {
			mime = *sch.AttachedFileMime
		}
		name := *sch.AttachedFile
		if sch.AttachedFileName != nil {
			name = *sch.AttachedFileName
		}
		c.DataFromReader(http.StatusOK, attrs.Size, mime, body, map[string]string{
			"Content-Disposition": `attachment; filename="` + name + `"`,
		})
	})

	// printable roster sheet
	r.GET("/api/schedules/:id/pdf", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		sid, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		sch, err := s.schedules.Get(c.Request.Context(), sid)
		if err != nil {
			s.respondError(c, http.StatusNotFound, "schedule not found")
			return
		}
		doc, err := s.schedulePDF(c.Request.Context(), sch)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "failed to render pdf")
			return
		}
		c.Header("Content-Disposition", `attachment; filename="schedule-`+itoa(sch.ID)+`.pdf"`)
		c.Data(http.StatusOK, "application/pdf", doc)
	})
}

// scheduleView assembles the list/detail shape: schedule plus assigned users
// (with their skill on this schedule) and linked tasks.
func (s *Server) scheduleView(ctx context.Context, sch *schedulesgorm.ScheduleRecord) (gin.H, error) {
	assignments, err := s.schedules.Assignments(ctx, sch.ID)
	if err != nil {
		return nil, err
	}
	users := make([]gin.H, 0, len(assignments))
	for _, a := range assignments {
		u, err := s.users.Get(ctx, a.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		users = append(users, gin.H{"user": u.Public(), "skill": a.Skill})
	}
	tasks, err := s.tasks.ListBySchedule(ctx, sch.ID)
	if err != nil {
		return nil, err
	}
	taskViews := make([]gin.H, 0, len(tasks))
	for i := range tasks {
		taskViews = append(taskViews, taskView(&tasks[i]))
	}
	return gin.H{
		"id":          sch.ID,
		"name":        sch.Name,
		"description": sch.Description,
		"startTime":   sch.StartTime,
		"endTime":     sch.EndTime,
		"createdAt":   sch.CreatedAt,
		"users":       users,
		"tasks":       taskViews,
	}, nil
}
