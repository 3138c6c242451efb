package domain

import (
	"context"
	"time"
)

type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
