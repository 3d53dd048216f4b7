package models

import (
	"time"

	"github.com/Skotchmaster/usergate/internal/domain"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"       json:"id"`
	Username     string    `gorm:"size:255;uniqueIndex;not null"  json:"username"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"  json:"email"`
	PasswordHash string    `gorm:"not null"                       json:"-"`
	Role         string    `gorm:"size:32;not null;default:User"  json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime"                 json:"created_at"`
	// CredentialsChangedAt moves whenever the login name changes. Tokens
	// issued before it, or before CreatedAt, belong to another identity.
	CredentialsChangedAt *time.Time `json:"-"`
}

// TokensValidFrom is the first second from which an issued token may
// resolve to this row. Token timestamps carry whole seconds.
func (u User) TokensValidFrom() time.Time {
	from := u.CreatedAt
	if u.CredentialsChangedAt != nil && u.CredentialsChangedAt.After(from) {
		from = *u.CredentialsChangedAt
	}
	return from.Truncate(time.Second)
}

func (u User) Principal() domain.Principal {
	return domain.Principal{
		ID:       u.ID,
		Username: u.Username,
		Role:     domain.Role(u.Role),
	}
}

type Permission struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"                    json:"id"`
	Role     string `gorm:"size:32;not null;uniqueIndex:idx_grant"      json:"role"`
	Endpoint string `gorm:"size:255;not null;uniqueIndex:idx_grant"     json:"endpoint"`
	Method   string `gorm:"size:16;not null;uniqueIndex:idx_grant"      json:"method"`
}

func (p Permission) Grant() domain.PermissionGrant {
	return domain.PermissionGrant{
		Role:     domain.Role(p.Role),
		Endpoint: p.Endpoint,
		Method:   p.Method,
	}
}

// RevokedToken is a logout blacklist row. Rows are only meaningful until
// ExpiresAt and are swept afterwards.
type RevokedToken struct {
	JTI       string    `gorm:"primaryKey;size:64"  json:"jti"`
	ExpiresAt time.Time `gorm:"index;not null"      json:"expires_at"`
}

func All() []any {
	return []any{&User{}, &Permission{}, &RevokedToken{}}
}
