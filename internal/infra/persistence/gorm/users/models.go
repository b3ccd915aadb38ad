package usersgorm

import (
	"gorm.io/gorm"
)

// Roles understood by the API. The default for new accounts is RoleUser.
const (
	RoleAdmin  = "ADMIN"
	RoleLeader = "LEADER"
	RoleUser   = "USER"
)

func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleLeader, RoleUser:
		return true
	}
	return false
}

type UserRecord struct {
	gorm.Model
	Name         string  `gorm:"size:128;not null"`
	Email        string  `gorm:"uniqueIndex;size:256;not null"`
	PasswordHash string  `gorm:"size:255;not null"` // bcrypt hash
	Role         string  `gorm:"size:16;not null;default:USER"`
	Active       bool    `gorm:"not null;default:true"`
	Avatar       *string `gorm:"size:256"`
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserRecord{})
}

// Public is the shape safe to return to any caller.
type Public struct {
	ID     uint    `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Role   string  `json:"role"`
	Active bool    `json:"active"`
	Avatar *string `json:"avatar"`
}

func (u *UserRecord) Public() Public {
	return Public{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Active: u.Active, Avatar: u.Avatar}
}
