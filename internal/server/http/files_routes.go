package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openroster/roster/internal/objstore"
)

// Avatars are public assets; everything message-related goes through the
// messaging download route instead.
func (s *Server) addFileRoutes(r *gin.Engine) {
	r.GET("/api/files/:fileName", func(c *gin.Context) {
		body, attrs, err := s.files.Open(c.Request.Context(), c.Param("fileName"))
		if err != nil {
			if errors.Is(err, objstore.ErrNotExist) {
				s.respondError(c, http.StatusNotFound, "file not found")
				return
			}
			s.respondError(c, http.StatusInternalServerError, "internal error")
			return
		}
		defer body.Close()
		c.DataFromReader(http.StatusOK, attrs.Size, attrs.ContentType, body, nil)
	})
}
