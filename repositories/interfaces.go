package repositories

import (
	"context"
	"errors"

	"github.com/coursework/calendar/models"
)

var (
	// ErrNotFound is returned by lookups that match no row
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert hits a unique constraint
	ErrDuplicate = errors.New("duplicate")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context bound to the transaction. Repositories
	// called with it run their statements inside the transaction.
	Context() context.Context
}

// PrincipalDirectory resolves a credential subject (email) to a user.
// Implementations return ErrNotFound when no user matches.
type PrincipalDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserRepository handles user data operations
type UserRepository interface {
	PrincipalDirectory

	// Create creates a new user. Returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, user *models.User) error

	// ExistsByEmail reports whether a user with the email exists
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Users UserRepository
}
