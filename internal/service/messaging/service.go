package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	messaginggorm "github.com/openroster/roster/internal/infra/persistence/gorm/messaging"
	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
	"github.com/openroster/roster/internal/objstore"
	"gorm.io/gorm"
)

// Error kinds surfaced to the API layer. Callers match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrStorage    = errors.New("storage failure")
)

// Service implements the conversation/message operations. The acting user is
// always an explicit argument; nothing is resolved from ambient state.
type Service struct {
	repo  *messaginggorm.Repo
	users *usersgorm.Repo
	files objstore.Store
}

func NewService(repo *messaginggorm.Repo, users *usersgorm.Repo, files objstore.Store) *Service {
	return &Service{repo: repo, users: users, files: files}
}

// CreateConversation starts a thread between the acting user and a recipient
// and posts the first message, atomically.
func (s *Service) CreateConversation(ctx context.Context, actingUserID, recipientID uint, subject, firstBody string) (*messaginggorm.ConversationRecord, *messaginggorm.MessageRecord, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if strings.TrimSpace(firstBody) == "" {
		return nil, nil, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if recipientID == actingUserID {
		return nil, nil, fmt.Errorf("%w: recipient must be another user", ErrValidation)
	}
	if _, err := s.users.Get(ctx, recipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: recipient does not exist", ErrNotFound)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	conv, msg, err := s.repo.CreateConversation(ctx, subject, actingUserID, recipientID, firstBody)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	// reload so the caller gets the participant set with users populated
	conv, err = s.repo.Get(ctx, conv.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return conv, msg, nil
}

// ListConversations returns the acting user's conversations with participants
// and the most recent message of each, for preview rendering.
func (s *Service) ListConversations(ctx context.Context, actingUserID uint) ([]messaginggorm.ConversationRecord, error) {
	convs, err := s.repo.ListForUser(ctx, actingUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return convs, nil
}

// UnreadCount is a pure aggregate; it has no side effects.
func (s *Service) UnreadCount(ctx context.Context, actingUserID uint) (int64, error) {
	n, err := s.repo.UnreadCount(ctx, actingUserID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return n, nil
}

// ListMessages returns the conversation's messages oldest first and, as a side
// effect, records a read receipt for every currently-existing message on
// behalf of the acting user. Receipts are insert-or-ignore, so repeated calls
// are no-ops.
func (s *Service) ListMessages(ctx context.Context, conversationID, actingUserID uint) ([]messaginggorm.MessageRecord, error) {
	if err := s.requireParticipant(ctx, conversationID, actingUserID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.repo.MarkAllRead(ctx, conversationID, actingUserID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msgs, nil
}

// CreateMessage appends a text message authored by the acting user.
func (s *Service) CreateMessage(ctx context.Context, conversationID, actingUserID uint, content string) (*messaginggorm.MessageRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if err := s.requireParticipant(ctx, conversationID, actingUserID); err != nil {
		return nil, err
	}
	msg := &messaginggorm.MessageRecord{
		ConversationID: conversationID,
		AuthorID:       actingUserID,
		Content:        content,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msg, nil
}

// UploadFile stores the payload under a fresh unique key and appends a
// file-backed message. If the write fails no message row is created; if the
// row insert fails the stored object is removed best-effort.
func (s *Service) UploadFile(ctx context.Context, conversationID, actingUserID uint, originalName, mimeType string, payload io.Reader) (*messaginggorm.MessageRecord, error) {
	originalName = strings.TrimSpace(filepath.Base(originalName))
	if originalName == "" || originalName == "." {
		return nil, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if err := s.requireParticipant(ctx, conversationID, actingUserID); err != nil {
		return nil, err
	}
	key := uuid.NewString() + "-" + originalName
	if err := s.files.Put(ctx, key, payload, mimeType); err != nil {
		return nil, fmt.Errorf("%w: store file: %v", ErrStorage, err)
	}
	return s.attachStored(ctx, conversationID, actingUserID, originalName, key, mimeType)
}

// AttachStoredFile appends a file-backed message referencing an object that
// was already written to the store (the schedule broadcast path uploads once
// and fans out).
func (s *Service) AttachStoredFile(ctx context.Context, conversationID, actingUserID uint, originalName, key, mimeType string) (*messaginggorm.MessageRecord, error) {
	if err := s.requireParticipant(ctx, conversationID, actingUserID); err != nil {
		return nil, err
	}
	msg := &messaginggorm.MessageRecord{
		ConversationID: conversationID,
		AuthorID:       actingUserID,
		Content:        originalName,
		File:           &key,
		FileMimeType:   &mimeType,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msg, nil
}

func (s *Service) attachStored(ctx context.Context, conversationID, actingUserID uint, originalName, key, mimeType string) (*messaginggorm.MessageRecord, error) {
	msg := &messaginggorm.MessageRecord{
		ConversationID: conversationID,
		AuthorID:       actingUserID,
		Content:        originalName,
		File:           &key,
		FileMimeType:   &mimeType,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		_ = s.files.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msg, nil
}

// Download resolves a stored file key to its byte stream. The key itself acts
// as the capability; participancy is not re-checked here.
type Download struct {
	Body         io.ReadCloser
	OriginalName string
	MimeType     string
	Size         int64
}

// DownloadFile looks up the most recent message referencing fileName and opens
// the stored object. A missing row and a missing object are both NotFound.
func (s *Service) DownloadFile(ctx context.Context, fileName string) (*Download, error) {
	msg, err := s.repo.LatestByFile(ctx, fileName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: file is not referenced by any message", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	body, attrs, err := s.files.Open(ctx, fileName)
	if err != nil {
		if errors.Is(err, objstore.ErrNotExist) {
			return nil, fmt.Errorf("%w: file is missing from storage", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	mime := attrs.ContentType
	if msg.FileMimeType != nil && *msg.FileMimeType != "" {
		mime = *msg.FileMimeType
	}
	return &Download{Body: body, OriginalName: msg.Content, MimeType: mime, Size: attrs.Size}, nil
}

// FindOrCreateConversation returns the conversation whose subject and exact
// participant set match, creating it when absent. Matching is deliberately
// strict: same subject string, same user ids, nothing fuzzier.
func (s *Service) FindOrCreateConversation(ctx context.Context, subject string, userIDs []uint) (*messaginggorm.ConversationRecord, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrValidation)
	}
	ids := dedupe(userIDs)
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: a conversation needs at least two participants", ErrValidation)
	}
	conv, err := s.repo.FindBySubjectAndParticipants(ctx, subject, ids)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	conv, err = s.repo.CreateWithParticipants(ctx, subject, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return conv, nil
}

// HasAuthoredMessages is used by user administration to refuse hard deletes
// of accounts that authored messages.
func (s *Service) HasAuthoredMessages(ctx context.Context, userID uint) (bool, error) {
	ok, err := s.repo.HasAuthoredMessages(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return ok, nil
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID uint) error {
	if _, err := s.repo.Get(ctx, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: conversation does not exist", ErrNotFound)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}
	return nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
