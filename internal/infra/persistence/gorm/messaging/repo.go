package messaginggorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// CreateConversation inserts the conversation, its participant rows and the
// first message in one transaction.
func (r *Repo) CreateConversation(ctx context.Context, subject string, initiatorID, recipientID uint, firstBody string) (*ConversationRecord, *MessageRecord, error) {
	conv := &ConversationRecord{Subject: subject}
	msg := &MessageRecord{AuthorID: initiatorID, Content: firstBody}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, uid := range []uint{initiatorID, recipientID} {
			p := &ConversationParticipantRecord{ConversationID: conv.ID, UserID: uid}
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		msg.ConversationID = conv.ID
		return tx.Create(msg).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

// Get loads a conversation with its participant rows (users populated).
func (r *Repo) Get(ctx context.Context, id uint) (*ConversationRecord, error) {
	var conv ConversationRecord
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		First(&conv, id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListForUser returns every conversation the user participates in, newest
// activity first, each with participants and only its latest message.
func (r *Repo) ListForUser(ctx context.Context, userID uint) ([]ConversationRecord, error) {
	var convs []ConversationRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participant_records cp ON cp.conversation_id = conversation_records.id AND cp.user_id = ?", userID).
		Preload("Participants.User").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Where("id IN (?)",
				db.Session(&gorm.Session{NewDB: true}).
					Model(&MessageRecord{}).
					Select("MAX(id)").
					Group("conversation_id"),
			).Preload("Author")
		}).
		Order("conversation_records.updated_at DESC").
		Find(&convs).Error
	return convs, err
}

// IsParticipant reports membership of the conversation's participant set.
func (r *Repo) IsParticipant(ctx context.Context, conversationID, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ConversationParticipantRecord{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// ListMessages returns all messages of a conversation oldest first, authors populated.
func (r *Repo) ListMessages(ctx context.Context, conversationID uint) ([]MessageRecord, error) {
	var msgs []MessageRecord
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	return msgs, err
}

// MarkAllRead records a read receipt for every current message of the
// conversation on behalf of userID. Existing receipts are left untouched.
func (r *Repo) MarkAllRead(ctx context.Context, conversationID, userID uint) error {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("conversation_id = ?", conversationID).
		Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]MessageReadRecord, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, MessageReadRecord{MessageID: id, UserID: userID, ReadAt: now})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// UnreadCount counts messages in the user's conversations that were authored
// by someone else and carry no read receipt for the user.
func (r *Repo) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table("message_records AS m").
		Joins("JOIN conversation_participant_records cp ON cp.conversation_id = m.conversation_id AND cp.user_id = ?", userID).
		Joins("LEFT JOIN message_read_records mr ON mr.message_id = m.id AND mr.user_id = ?", userID).
		Where("m.author_id <> ? AND mr.message_id IS NULL AND m.deleted_at IS NULL", userID).
		Count(&n).Error
	return n, err
}

func (r *Repo) CreateMessage(ctx context.Context, m *MessageRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		// bump the thread so conversation lists sort by latest activity
		return tx.Model(&ConversationRecord{}).
			Where("id = ?", m.ConversationID).
			Update("updated_at", time.Now()).Error
	})
}

// LatestByFile resolves the most recent message referencing a stored file key.
func (r *Repo) LatestByFile(ctx context.Context, fileName string) (*MessageRecord, error) {
	var m MessageRecord
	err := r.db.WithContext(ctx).
		Where("file = ?", fileName).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindBySubjectAndParticipants returns a conversation whose subject matches
// and whose participant set equals exactly the given set, or
// gorm.ErrRecordNotFound. Used by the explicit find-or-create path only.
func (r *Repo) FindBySubjectAndParticipants(ctx context.Context, subject string, userIDs []uint) (*ConversationRecord, error) {
	matching := r.db.Session(&gorm.Session{NewDB: true}).
		Model(&ConversationParticipantRecord{}).
		Select("conversation_id").
		Group("conversation_id").
		Having("COUNT(*) = ? AND COUNT(CASE WHEN user_id IN ? THEN 1 END) = ?",
			len(userIDs), userIDs, len(userIDs))
	var conv ConversationRecord
	err := r.db.WithContext(ctx).
		Preload("Participants.User").
		Where("subject = ? AND id IN (?)", subject, matching).
		Order("id ASC").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateWithParticipants inserts a conversation with an arbitrary participant
// set and no first message (the find-or-create path appends its own message).
func (r *Repo) CreateWithParticipants(ctx context.Context, subject string, userIDs []uint) (*ConversationRecord, error) {
	conv := &ConversationRecord{Subject: subject}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, uid := range userIDs {
			p := &ConversationParticipantRecord{ConversationID: conv.ID, UserID: uid}
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// HasAuthoredMessages reports whether any message references the user as author.
func (r *Repo) HasAuthoredMessages(ctx context.Context, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("author_id = ?", userID).Count(&n).Error
	return n > 0, err
}
