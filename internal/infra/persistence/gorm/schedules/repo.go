package schedulesgorm

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, s *ScheduleRecord, userIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		for _, uid := range userIDs {
			if err := tx.Create(&ScheduleUserRecord{ScheduleID: s.ID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) Get(ctx context.Context, id uint) (*ScheduleRecord, error) {
	var s ScheduleRecord
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) List(ctx context.Context, limit, offset int) ([]ScheduleRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&ScheduleRecord{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []ScheduleRecord
	if err := q.Order("start_time ASC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListByUser returns schedules the user is assigned to.
func (r *Repo) ListByUser(ctx context.Context, userID uint) ([]ScheduleRecord, error) {
	var out []ScheduleRecord
	err := r.db.WithContext(ctx).
		Joins("JOIN schedule_user_records su ON su.schedule_id = schedule_records.id AND su.user_id = ?", userID).
		Order("start_time ASC").Find(&out).Error
	return out, err
}

func (r *Repo) Save(ctx context.Context, s *ScheduleRecord) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// Delete removes the schedule and its assignment rows.
func (r *Repo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("schedule_id = ?", id).Delete(&ScheduleUserRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ScheduleRecord{}, id).Error
	})
}

// ReplaceUsers swaps the full assignment set of a schedule.
func (r *Repo) ReplaceUsers(ctx context.Context, scheduleID uint, userIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("schedule_id = ?", scheduleID).Delete(&ScheduleUserRecord{}).Error; err != nil {
			return err
		}
		for _, uid := range userIDs {
			if err := tx.Create(&ScheduleUserRecord{ScheduleID: scheduleID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) AddUser(ctx context.Context, scheduleID, userID uint, skill string) error {
	return r.db.WithContext(ctx).Create(&ScheduleUserRecord{ScheduleID: scheduleID, UserID: userID, Skill: skill}).Error
}

func (r *Repo) RemoveUser(ctx context.Context, scheduleID, userID uint) error {
	res := r.db.WithContext(ctx).
		Where("schedule_id = ? AND user_id = ?", scheduleID, userID).
		Delete(&ScheduleUserRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repo) Assignments(ctx context.Context, scheduleID uint) ([]ScheduleUserRecord, error) {
	var out []ScheduleUserRecord
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Find(&out).Error
	return out, err
}

func (r *Repo) IsAssigned(ctx context.Context, scheduleID, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ScheduleUserRecord{}).
		Where("schedule_id = ? AND user_id = ?", scheduleID, userID).Count(&n).Error
	return n > 0, err
}
