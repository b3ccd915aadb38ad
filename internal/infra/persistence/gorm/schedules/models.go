package schedulesgorm

import (
	"time"

	"gorm.io/gorm"
)

type ScheduleRecord struct {
	gorm.Model
	Name        string    `gorm:"size:200;not null"`
	Description string    `gorm:"type:text"`
	StartTime   time.Time `gorm:"not null"`
	EndTime     time.Time `gorm:"not null"`

	// Latest broadcast attachment; the same object is referenced by the
	// per-participant file messages.
	AttachedFile     *string `gorm:"size:256"`
	AttachedFileName *string `gorm:"size:256"`
	AttachedFileMime *string `gorm:"size:128"`
}

// ScheduleUserRecord assigns a user to a schedule, optionally tagged with the
// skill they fill on that shift.
type ScheduleUserRecord struct {
	ScheduleID uint      `gorm:"primaryKey"`
	UserID     uint      `gorm:"primaryKey"`
	Skill      string    `gorm:"size:128"`
	CreatedAt  time.Time
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ScheduleRecord{}, &ScheduleUserRecord{})
}
