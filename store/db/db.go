package db

import (
	"github.com/pkg/errors"

	"github.com/refound-dev/refound/internal/profile"
	"github.com/refound-dev/refound/store"
	"github.com/refound-dev/refound/store/db/postgres"
	"github.com/refound-dev/refound/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
//
// PostgreSQL is the production driver: it stores embeddings in a pgvector
// column and prunes match references with a single statement. SQLite keeps
// both as JSON text and is intended for development and small deployments.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
