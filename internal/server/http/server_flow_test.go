package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/openroster/roster/internal/auth/password"
	"github.com/openroster/roster/internal/auth/rbac"
	"github.com/openroster/roster/internal/auth/token"
	messaginggorm "github.com/openroster/roster/internal/infra/persistence/gorm/messaging"
	schedulesgorm "github.com/openroster/roster/internal/infra/persistence/gorm/schedules"
	tasksgorm "github.com/openroster/roster/internal/infra/persistence/gorm/tasks"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
	"github.com/openroster/roster/internal/objstore"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, m := range []func(*gorm.DB) error{
		usersgorm.AutoMigrate, tasksgorm.AutoMigrate, schedulesgorm.AutoMigrate, messaginggorm.AutoMigrate,
	} {
		if err := m(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	files, err := objstore.New(context.Background(), objstore.Config{Driver: "file", BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open objstore: %v", err)
	}
	policy, err := rbac.NewDefault()
	if err != nil {
		t.Fatalf("rbac: %v", err)
	}
	return NewServer(Config{Addr: ":0"}, db, files, token.NewManager("test-secret", time.Hour), policy)
}

func seedUser(t *testing.T, s *Server, name, email, pass, role string) uint {
	t.Helper()
	hash, err := password.Hash(pass)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &usersgorm.UserRecord{Name: name, Email: email, PasswordHash: hash, Role: role, Active: true}
	if err := s.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", email, err)
	}
	return u.ID
}

func doJSON(t *testing.T, s *Server, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewBuffer(b)
	} else {
		rd = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, s *Server, email, pass string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": pass})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d: %s", email, w.Code, w.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil || out.Token == "" {
		t.Fatalf("login response missing token: %s", w.Body.String())
	}
	return out.Token
}

func TestAuthAndUserAdmin(t *testing.T) {
	s := setupServer(t)
	seedUser(t, s, "Admin", "admin@example.org", "pw-admin", usersgorm.RoleAdmin)
	adminTok := login(t, s, "admin@example.org", "pw-admin")

	// wrong password
	if w := doJSON(t, s, http.MethodPost, "/api/auth/login", "", gin.H{"email": "admin@example.org", "password": "nope"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: want 401, got %d", w.Code)
	}

	// admin creates a member
	w := doJSON(t, s, http.MethodPost, "/api/users", adminTok, gin.H{"name": "Bob", "email": "bob@example.org", "password": "pw-bob"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user: %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID   uint   `json:"id"`
		Role string `json:"role"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Role != usersgorm.RoleUser {
		t.Fatalf("default role want USER, got %s", created.Role)
	}

	// duplicate email refused
	if w := doJSON(t, s, http.MethodPost, "/api/users", adminTok, gin.H{"name": "Bob2", "email": "bob@example.org", "password": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate email: want 400, got %d", w.Code)
	}

	bobTok := login(t, s, "bob@example.org", "pw-bob")

	// a USER may not create users or list them
	if w := doJSON(t, s, http.MethodPost, "/api/users", bobTok, gin.H{"name": "X", "email": "x@example.org", "password": "x"}); w.Code != http.StatusForbidden {
		t.Fatalf("user create by USER: want 403, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodGet, "/api/users", bobTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user list by USER: want 403, got %d", w.Code)
	}
	// no token at all
	if w := doJSON(t, s, http.MethodGet, "/api/users", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: want 401, got %d", w.Code)
	}

	// deactivation locks bob out of login
	if w := doJSON(t, s, http.MethodPatch, "/api/users/"+itoa(created.ID)+"/admin", adminTok, gin.H{"active": false}); w.Code != http.StatusOK {
		t.Fatalf("deactivate: %d: %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, s, http.MethodPost, "/api/auth/login", "", gin.H{"email": "bob@example.org", "password": "pw-bob"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated login: want 401, got %d", w.Code)
	}
}

func TestMessagingFlow(t *testing.T) {
	s := setupServer(t)
	seedUser(t, s, "Admin", "admin@example.org", "pw-admin", usersgorm.RoleAdmin)
	bobID := seedUser(t, s, "Bob", "bob@example.org", "pw-bob", usersgorm.RoleUser)
	seedUser(t, s, "Eve", "eve@example.org", "pw-eve", usersgorm.RoleUser)
	adminTok := login(t, s, "admin@example.org", "pw-admin")
	bobTok := login(t, s, "bob@example.org", "pw-bob")
	eveTok := login(t, s, "eve@example.org", "pw-eve")

	// 1) admin opens a conversation with bob
	w := doJSON(t, s, http.MethodPost, "/api/messaging/conversations", adminTok,
		gin.H{"subject": "Sunday service", "message": "can you cover?", "recipientId": bobID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation: %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Conversation struct {
			ID    uint `json:"id"`
			Users []struct {
				ID uint `json:"id"`
			} `json:"users"`
		} `json:"conversation"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if len(created.Conversation.Users) != 2 {
		t.Fatalf("create response should carry both participants: %s", w.Body.String())
	}
	convID := itoa(created.Conversation.ID)

	// 2) bob sees one unread
	w = doJSON(t, s, http.MethodGet, "/api/messaging/conversations/unread-count", bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unread: %d: %s", w.Code, w.Body.String())
	}
	var cnt struct {
		Count int64 `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &cnt)
	if cnt.Count != 1 {
		t.Fatalf("bob unread want 1, got %d", cnt.Count)
	}

	// 3) bob lists his conversations and reads the thread
	w = doJSON(t, s, http.MethodGet, "/api/messaging/conversations", bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list conversations: %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodGet, "/api/messaging/conversations/"+convID+"/messages", bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list messages: %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodGet, "/api/messaging/conversations/unread-count", bobTok, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &cnt)
	if cnt.Count != 0 {
		t.Fatalf("bob unread after reading want 0, got %d", cnt.Count)
	}

	// 4) bob replies
	if w := doJSON(t, s, http.MethodPost, "/api/messaging/conversations/"+convID+"/messages", bobTok, gin.H{"content": "yes, count me in"}); w.Code != http.StatusCreated {
		t.Fatalf("reply: %d: %s", w.Code, w.Body.String())
	}

	// 5) eve is not a participant
	if w := doJSON(t, s, http.MethodGet, "/api/messaging/conversations/"+convID+"/messages", eveTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("outsider read: want 403, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodPost, "/api/messaging/conversations/"+convID+"/messages", eveTok, gin.H{"content": "hi"}); w.Code != http.StatusForbidden {
		t.Fatalf("outsider post: want 403, got %d", w.Code)
	}

	// 6) attachment round trip
	var mp bytes.Buffer
	mw := multipart.NewWriter(&mp)
	fw, _ := mw.CreateFormFile("file", "rota.txt")
	fw.Write([]byte("who serves when"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/messaging/conversations/"+convID+"/messages/upload", &mp)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d: %s", rec.Code, rec.Body.String())
	}
	var uploaded struct {
		File string `json:"file"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &uploaded)
	if uploaded.File == "" {
		t.Fatalf("upload response missing file key: %s", rec.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/api/messaging/messages/download/"+uploaded.File, bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("download: %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "who serves when" {
		t.Fatalf("download payload mismatch: %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="rota.txt"` {
		t.Fatalf("content disposition: %q", cd)
	}

	if w := doJSON(t, s, http.MethodGet, "/api/messaging/messages/download/missing.bin", bobTok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing download: want 404, got %d", w.Code)
	}
}

func TestScheduleBroadcast(t *testing.T) {
	s := setupServer(t)
	adminID := seedUser(t, s, "Admin", "admin@example.org", "pw-admin", usersgorm.RoleAdmin)
	bobID := seedUser(t, s, "Bob", "bob@example.org", "pw-bob", usersgorm.RoleUser)
	adminTok := login(t, s, "admin@example.org", "pw-admin")
	bobTok := login(t, s, "bob@example.org", "pw-bob")
	_ = adminID

	// schedule with bob assigned
	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	w := doJSON(t, s, http.MethodPost, "/api/schedules", adminTok, gin.H{
		"name": "Sunday service", "description": "main hall",
		"startTime": start, "endTime": start.Add(2 * time.Hour),
		"userIds": []uint{bobID},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create schedule: %d: %s", w.Code, w.Body.String())
	}
	var sch struct {
		ID    uint `json:"id"`
		Users []struct {
			Skill string `json:"skill"`
		} `json:"users"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &sch)
	if sch.ID == 0 {
		t.Fatalf("schedule id missing: %s", w.Body.String())
	}
	if len(sch.Users) != 1 {
		t.Fatalf("create response should list assigned users: %s", w.Body.String())
	}
	sid := itoa(sch.ID)

	// bob finds it under his schedules
	w = doJSON(t, s, http.MethodGet, "/api/schedules/my", bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("my schedules: %d: %s", w.Code, w.Body.String())
	}
	var mine struct {
		Schedules []json.RawMessage `json:"schedules"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &mine)
	if len(mine.Schedules) != 1 {
		t.Fatalf("bob schedules want 1, got %d", len(mine.Schedules))
	}

	// admin broadcasts a file to everyone assigned
	var mp bytes.Buffer
	mw := multipart.NewWriter(&mp)
	fw, _ := mw.CreateFormFile("file", "plan.pdf")
	fw.Write([]byte("%PDF-fake"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/schedules/"+sid+"/upload", &mp)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("broadcast upload: %d: %s", rec.Code, rec.Body.String())
	}
	var up struct {
		Notified int `json:"notified"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &up)
	if up.Notified != 1 {
		t.Fatalf("notified want 1, got %d", up.Notified)
	}

	// bob now has an unread file message in a "Schedule: ..." thread
	w = doJSON(t, s, http.MethodGet, "/api/messaging/conversations/unread-count", bobTok, nil)
	var cnt struct {
		Count int64 `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &cnt)
	if cnt.Count != 1 {
		t.Fatalf("bob unread want 1, got %d", cnt.Count)
	}
	w = doJSON(t, s, http.MethodGet, "/api/messaging/conversations", bobTok, nil)
	var convs struct {
		Conversations []struct {
			ID      uint   `json:"id"`
			Subject string `json:"subject"`
		} `json:"conversations"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &convs)
	if len(convs.Conversations) != 1 || convs.Conversations[0].Subject != "Schedule: Sunday service" {
		t.Fatalf("broadcast thread missing: %s", w.Body.String())
	}

	// a second upload reuses the same thread
	var mp2 bytes.Buffer
	mw2 := multipart.NewWriter(&mp2)
	fw2, _ := mw2.CreateFormFile("file", "plan-v2.pdf")
	fw2.Write([]byte("%PDF-fake-2"))
	mw2.Close()
	req2 := httptest.NewRequest(http.MethodPost, "/api/schedules/"+sid+"/upload", &mp2)
	req2.Header.Set("Content-Type", mw2.FormDataContentType())
	req2.Header.Set("Authorization", "Bearer "+adminTok)
	rec2 := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("second upload: %d: %s", rec2.Code, rec2.Body.String())
	}
	w = doJSON(t, s, http.MethodGet, "/api/messaging/conversations", bobTok, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &convs)
	if len(convs.Conversations) != 1 {
		t.Fatalf("second upload must reuse the thread, got %d threads", len(convs.Conversations))
	}

	// latest broadcast is downloadable from the schedule
	w = doJSON(t, s, http.MethodGet, "/api/schedules/"+sid+"/uploaded-file", bobTok, nil)
	if w.Code != http.StatusOK || w.Body.String() != "%PDF-fake-2" {
		t.Fatalf("uploaded-file: %d %q", w.Code, w.Body.String())
	}

	// printable sheet
	w = doJSON(t, s, http.MethodGet, "/api/schedules/"+sid+"/pdf", bobTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pdf: %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("pdf content type: %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF-") {
		t.Fatalf("pdf body does not look like a pdf: %q", w.Body.String()[:16])
	}

	// USER may not manage schedules
	if w := doJSON(t, s, http.MethodPost, "/api/schedules", bobTok, gin.H{"name": "x", "startTime": start, "endTime": start.Add(time.Hour)}); w.Code != http.StatusForbidden {
		t.Fatalf("schedule create by USER: want 403, got %d", w.Code)
	}
	if w := doJSON(t, s, http.MethodDelete, "/api/schedules/"+sid, bobTok, nil); w.Code != http.StatusForbidden {
		t.Fatalf("schedule delete by USER: want 403, got %d", w.Code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := setupServer(t)
	seedUser(t, s, "Admin", "admin@example.org", "pw-admin", usersgorm.RoleAdmin)
	seedUser(t, s, "Lea", "lea@example.org", "pw-lea", usersgorm.RoleLeader)
	adminTok := login(t, s, "admin@example.org", "pw-admin")
	leaTok := login(t, s, "lea@example.org", "pw-lea")

	w := doJSON(t, s, http.MethodPost, "/api/tasks", adminTok, gin.H{"name": "Set up chairs"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create task: %d: %s", w.Code, w.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"id", "name", "status", "ownerId", "createdAt", "updatedAt"} {
		if _, ok := created[k]; !ok {
			t.Errorf("task response missing %q: %s", k, w.Body.String())
		}
	}
	if created["status"] != tasksgorm.StatusPending {
		t.Fatalf("default status want PENDING, got %v", created["status"])
	}
	tid := itoa(uint(created["id"].(float64)))

	// a leader may not edit someone else's task
	if w := doJSON(t, s, http.MethodPatch, "/api/tasks/"+tid, leaTok, gin.H{"status": tasksgorm.StatusDone}); w.Code != http.StatusForbidden {
		t.Fatalf("foreign task edit: want 403, got %d: %s", w.Code, w.Body.String())
	}

	// the owner may
	w = doJSON(t, s, http.MethodPatch, "/api/tasks/"+tid, adminTok, gin.H{"status": tasksgorm.StatusDone})
	if w.Code != http.StatusOK {
		t.Fatalf("edit task: %d: %s", w.Code, w.Body.String())
	}
	var updated struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Status != tasksgorm.StatusDone {
		t.Fatalf("status want DONE, got %s", updated.Status)
	}

	if w := doJSON(t, s, http.MethodDelete, "/api/tasks/"+tid, adminTok, nil); w.Code != http.StatusOK {
		t.Fatalf("delete task: %d: %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, s, http.MethodGet, "/api/tasks/"+tid, adminTok, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted task lookup: want 404, got %d", w.Code)
	}
}

func TestMalformedIDs(t *testing.T) {
	s := setupServer(t)
	seedUser(t, s, "Admin", "admin@example.org", "pw-admin", usersgorm.RoleAdmin)
	adminTok := login(t, s, "admin@example.org", "pw-admin")

	// a non-numeric id is a caller error, not a lookup miss
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/users/abc"},
		{http.MethodGet, "/api/tasks/abc"},
		{http.MethodGet, "/api/schedules/0"},
		{http.MethodGet, "/api/messaging/conversations/abc/messages"},
		{http.MethodPost, "/api/messaging/conversations/abc/messages"},
	} {
		w := doJSON(t, s, tc.method, tc.path, adminTok, gin.H{"content": "x"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: want 400, got %d: %s", tc.method, tc.path, w.Code, w.Body.String())
		}
	}
}
