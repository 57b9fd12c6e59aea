package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Item model related methods.
	CreateItem(ctx context.Context, create *Item) (*Item, error)
	ListItems(ctx context.Context, find *FindItem) ([]*Item, error)
	UpdateItem(ctx context.Context, update *UpdateItem) error
	DeleteItem(ctx context.Context, delete *DeleteItem) error

	// UpdateItemEmbedding persists the embedding vector for an item.
	UpdateItemEmbedding(ctx context.Context, uid string, embedding []float32) error

	// AddMatchCandidate atomically adds a match entry to one item's list,
	// deduplicated by candidate UID (re-adding an existing pair is a no-op).
	AddMatchCandidate(ctx context.Context, itemUID string, candidate *MatchCandidate) error

	// PullMatchReference removes every match entry referencing candidateUID
	// across the whole store.
	PullMatchReference(ctx context.Context, candidateUID string) error

	// FindDuplicateItem finds an open item by the same user whose normalized
	// title and location equal the (already normalized) find condition.
	FindDuplicateItem(ctx context.Context, find *FindDuplicateItem) (*Item, error)

	// User model related methods.
	CreateUser(ctx context.Context, create *User) (*User, error)
	ListUsers(ctx context.Context, find *FindUser) ([]*User, error)
}
