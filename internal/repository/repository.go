// Package repository declares the storage contracts used by the service layer.
//
// Implementations live in sub-packages (see repository/sqlite). Lookups that
// find nothing return an error wrapping apperror.ErrNotFound; uniqueness
// violations return apperror.ErrConflict. Every other error is a storage
// failure and must not be mistaken for a domain outcome.
package repository

import (
	"context"

	"github.com/sakif/contacts-api/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ContactFilter selects contacts by case-insensitive substring. Empty
// fields are ignored; non-empty fields must all match.
type ContactFilter struct {
	FirstName string
	LastName  string
	Email     string
}

// IsEmpty reports whether no field of the filter is set.
func (f ContactFilter) IsEmpty() bool {
	return f.FirstName == "" && f.LastName == "" && f.Email == ""
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
}

type ContactRepository interface {
	CreateContact(ctx context.Context, contact *model.Contact) error
	GetContact(ctx context.Context, userID, id string) (*model.Contact, error)
	ListContacts(ctx context.Context, userID string, opts ListOptions) ([]model.Contact, error)
	UpdateContact(ctx context.Context, contact *model.Contact) error
	DeleteContact(ctx context.Context, userID, id string) error
	SearchContacts(ctx context.Context, userID string, filter ContactFilter) ([]model.Contact, error)
	ListContactsWithBirthday(ctx context.Context, userID string) ([]model.Contact, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}
