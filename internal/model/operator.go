package model

import "time"

// Operator roles.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

type Operator struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID         int64     `json:"id"`
	Token      string    `json:"-"`
	CSRFToken  string    `json:"csrf_token"`
	OperatorID int64     `json:"operator_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
