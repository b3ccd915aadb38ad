package messaginggorm

import (
	"time"

	usersgorm "github.com/openroster/roster/internal/infra/persistence/gorm/users"
	"gorm.io/gorm"
)

// ConversationRecord is a subject-titled thread with a fixed participant set.
type ConversationRecord struct {
	gorm.Model
	Subject      string                          `gorm:"size:200;not null"`
	Participants []ConversationParticipantRecord `gorm:"foreignKey:ConversationID"`
	Messages     []MessageRecord                 `gorm:"foreignKey:ConversationID"`
}

type ConversationParticipantRecord struct {
	ConversationID uint `gorm:"primaryKey"`
	UserID         uint `gorm:"primaryKey"`
	CreatedAt      time.Time

	User usersgorm.UserRecord `gorm:"foreignKey:UserID"`
}

// MessageRecord is immutable once created. For file-backed messages Content
// holds the original filename and File the server-generated storage key.
type MessageRecord struct {
	gorm.Model
	ConversationID uint    `gorm:"index;not null"`
	AuthorID       uint    `gorm:"index;not null"`
	Content        string  `gorm:"type:text;not null"`
	File           *string `gorm:"index;size:256"`
	FileMimeType   *string `gorm:"size:128"`

	Author usersgorm.UserRecord `gorm:"foreignKey:AuthorID"`
}

// MessageReadRecord marks that a user has observed a message. The composite
// primary key makes insert-or-ignore the natural dedup mechanism.
type MessageReadRecord struct {
	MessageID uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"primaryKey"`
	ReadAt    time.Time `gorm:"not null"`
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ConversationRecord{},
		&ConversationParticipantRecord{},
		&MessageRecord{},
		&MessageReadRecord{},
	)
}
