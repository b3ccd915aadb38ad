package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated principal carried in a signed token.
type Identity struct {
	UserID uint
	Email  string
	Name   string
	Role   string
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 bearer tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

func (m *Manager) Sign(id Identity) (string, error) {
	now := time.Now()
	c := claims{
		Email: id.Email,
		Name:  id.Name,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return t.SignedString(m.secret)
}

func (m *Manager) Verify(raw string) (Identity, error) {
	var c claims
	t, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !t.Valid {
		return Identity{}, errors.New("invalid token")
	}
	uid, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return Identity{}, errors.New("invalid subject")
	}
	return Identity{UserID: uint(uid), Email: c.Email, Name: c.Name, Role: c.Role}, nil
}
