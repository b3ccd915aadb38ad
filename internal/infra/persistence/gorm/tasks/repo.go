package tasksgorm

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, t *TaskRecord) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *Repo) Get(ctx context.Context, id uint) (*TaskRecord, error) {
	var t TaskRecord
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repo) List(ctx context.Context, search string, limit, offset int) ([]TaskRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&TaskRecord{})
	if s := strings.TrimSpace(search); s != "" {
		q = q.Where("name LIKE ? OR description LIKE ?", "%"+s+"%", "%"+s+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []TaskRecord
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) Save(ctx context.Context, t *TaskRecord) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *Repo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&TaskRecord{}, id).Error
}

// AttachToSchedule points the given tasks at a schedule.
func (r *Repo) AttachToSchedule(ctx context.Context, scheduleID uint, taskIDs []uint) error {
	if len(taskIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&TaskRecord{}).
		Where("id IN ?", taskIDs).Update("schedule_id", scheduleID).Error
}

// DetachFromSchedule clears the schedule link from every task of a schedule.
func (r *Repo) DetachFromSchedule(ctx context.Context, scheduleID uint) error {
	return r.db.WithContext(ctx).Model(&TaskRecord{}).
		Where("schedule_id = ?", scheduleID).Update("schedule_id", nil).Error
}

func (r *Repo) ListBySchedule(ctx context.Context, scheduleID uint) ([]TaskRecord, error) {
	var out []TaskRecord
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Order("created_at ASC").Find(&out).Error
	return out, err
}
