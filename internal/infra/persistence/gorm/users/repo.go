package usersgorm

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, u *UserRecord) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) Get(ctx context.Context, id uint) (*UserRecord, error) {
	var u UserRecord
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetActiveByEmail is the login lookup; inactive accounts are invisible to it.
func (r *Repo) GetActiveByEmail(ctx context.Context, email string) (*UserRecord, error) {
	var u UserRecord
	err := r.db.WithContext(ctx).Where("email = ? AND active = ?", email, true).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List applies the admin listing filters and returns a page plus the total.
func (r *Repo) List(ctx context.Context, search, active, role string, limit, offset int) ([]UserRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&UserRecord{})
	if s := strings.TrimSpace(search); s != "" {
		q = q.Where("name LIKE ? OR email LIKE ?", "%"+s+"%", "%"+s+"%")
	}
	switch active {
	case "true":
		q = q.Where("active = ?", true)
	case "false":
		q = q.Where("active = ?", false)
	}
	if ValidRole(role) {
		q = q.Where("role = ?", role)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []UserRecord
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repo) Save(ctx context.Context, u *UserRecord) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *Repo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&UserRecord{}, id).Error
}
