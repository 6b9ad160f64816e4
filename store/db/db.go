// Package db provides the database driver factory.
//
// PostgreSQL and SQLite are both fully supported for the small schema
// this project carries (memory records and conversation state). SQLite
// is the default for single-process deployments; PostgreSQL serves
// installations that already run one.
package db

import (
	"github.com/pkg/errors"

	"github.com/wsu2059q/qvqchat/internal/profile"
	"github.com/wsu2059q/qvqchat/store"
	"github.com/wsu2059q/qvqchat/store/db/postgres"
	"github.com/wsu2059q/qvqchat/store/db/sqlite"
)

// NewDriver creates a new db driver based on the profile.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'sqlite' and 'postgres' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
