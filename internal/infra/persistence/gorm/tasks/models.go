package tasksgorm

import "gorm.io/gorm"

const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type TaskRecord struct {
	gorm.Model
	Name        string `gorm:"size:200;not null"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"size:16;not null;default:PENDING"`
	OwnerID     uint   `gorm:"index;not null"`
	// ScheduleID links a task to the schedule it belongs to, if any.
	ScheduleID *uint `gorm:"index"`
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&TaskRecord{})
}
