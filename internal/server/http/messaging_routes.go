package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	messaginggorm "github.com/openroster/roster/internal/infra/persistence/gorm/messaging"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
)

func (s *Server) addMessagingRoutes(r *gin.Engine) {
	r.POST("/api/messaging/conversations", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		var in struct {
			Subject     string `json:"subject"`
			Message     string `json:"message"`
			RecipientID uint   `json:"recipientId"`
		}
		if err := c.BindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "invalid payload")
			return
		}
		conv, msg, err := s.messaging.CreateConversation(c.Request.Context(), id.UserID, in.RecipientID, in.Subject, in.Message)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		s.JSON(c, http.StatusCreated, gin.H{
			"conversation": conversationView(conv),
			"message":      messageView(msg),
		})
	})

	r.GET("/api/messaging/conversations", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		convs, err := s.messaging.ListConversations(c.Request.Context(), id.UserID)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		out := make([]gin.H, 0, len(convs))
		for i := range convs {
			out = append(out, conversationView(&convs[i]))
		}
		s.JSON(c, http.StatusOK, gin.H{"conversations": out})
	})

	r.GET("/api/messaging/conversations/unread-count", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		n, err := s.messaging.UnreadCount(c.Request.Context(), id.UserID)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		s.JSON(c, http.StatusOK, gin.H{"count": n})
	})

	// reading a conversation marks all of its messages read for the caller
	r.GET("/api/messaging/conversations/:id/messages", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		convID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		msgs, err := s.messaging.ListMessages(c.Request.Context(), convID, id.UserID)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		out := make([]gin.H, 0, len(msgs))
		for i := range msgs {
			out = append(out, messageView(&msgs[i]))
		}
		s.JSON(c, http.StatusOK, gin.H{"messages": out})
	})

	r.POST("/api/messaging/conversations/:id/messages", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		convID, ok := s.pathID(c, "id")
		if !ok {
			return
		}
		var in struct {
			Content string `json:"content"`
		}
		if err := c.BindJSON(&in); err != nil {
			s.respondError(c, http.StatusBadRequest, "invalid payload")
			return
		}
		msg, err := s.messaging.CreateMessage(c.Request.Context(), convID, id.UserID, in.Content)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		s.JSON(c, http.StatusCreated, messageView(msg))
	})

	r.POST("/api/messaging/conversations/:id/messages/upload", func(c *gin.Context) {
		id, ok := s.require(c)
		if !ok {
			return
		}
		convID, ok := s.pathID(c, "id")
		if !ok {
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
		msg, err := s.messaging.UploadFile(c.Request.Context(),
			convID, id.UserID, fh.Filename, fh.Header.Get("Content-Type"), src)
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		s.JSON(c, http.StatusCreated, messageView(msg))
	})

	// the generated key is the capability: knowing it grants the download
	r.GET("/api/messaging/messages/download/:fileName", func(c *gin.Context) {
		if _, ok := s.require(c); !ok {
			return
		}
		dl, err := s.messaging.DownloadFile(c.Request.Context(), c.Param("fileName"))
		if err != nil {
			s.respondServiceError(c, err)
			return
		}
		defer dl.Body.Close()
		c.DataFromReader(http.StatusOK, dl.Size, dl.MimeType, dl.Body, map[string]string{
			"Content-Disposition": `attachment; filename="` + dl.OriginalName + `"`,
		})
	})
}

// ---------- JSON views ----------

func conversationView(conv *messaginggorm.ConversationRecord) gin.H {
	users := make([]usersgorm.Public, 0, len(conv.Participants))
	for i := range conv.Participants {
		users = append(users, conv.Participants[i].User.Public())
	}
	v := gin.H{
		"id":        conv.ID,
		"subject":   conv.Subject,
		"createdAt": conv.CreatedAt,
		"updatedAt": conv.UpdatedAt,
		"users":     users,
	}
	if len(conv.Messages) > 0 {
		v["latestMessage"] = messageView(&conv.Messages[len(conv.Messages)-1])
	}
	return v
}

func messageView(msg *messaginggorm.MessageRecord) gin.H {
	v := gin.H{
		"id":             msg.ID,
		"conversationId": msg.ConversationID,
		"content":        msg.Content,
		"createdAt":      msg.CreatedAt,
	}
	if msg.File != nil {
		v["file"] = *msg.File
		if msg.FileMimeType != nil {
			v["fileMimeType"] = *msg.FileMimeType
		}
	}
	if msg.Author.ID != 0 {
		v["author"] = msg.Author.Public()
	} else {
		v["authorId"] = msg.AuthorID
	}
	return v
}
