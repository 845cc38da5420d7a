package config

import (
	"context"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald/pkg/domain/interfaces"
	"github.com/m-mizutani/herald/pkg/infra/ledger"
	"github.com/urfave/cli/v3"
)

// Ledger selects where dispatched event identities are recorded
type Ledger struct {
	Backend             string
	SQLitePath          string
	FirestoreProjectID  string
	FirestoreDatabaseID string
	FirestoreCollection string
}

// Flags returns CLI flags for the dispatch ledger
func (c *Ledger) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ledger",
			Usage:       "Dispatch ledger backend (memory, sqlite, firestore)",
			Value:       "memory",
			Destination: &c.Backend,
			Sources:     cli.EnvVars("HERALD_LEDGER"),
		},
		&cli.StringFlag{
			Name:        "ledger-sqlite-path",
			Usage:       "SQLite database file of the sqlite ledger",
			Value:       "herald.db",
			Destination: &c.SQLitePath,
			Sources:     cli.EnvVars("HERALD_LEDGER_SQLITE_PATH"),
		},
		&cli.StringFlag{
			Name:        "ledger-firestore-project-id",
			Usage:       "Google Cloud project ID of the firestore ledger",
			Destination: &c.FirestoreProjectID,
			Sources:     cli.EnvVars("HERALD_LEDGER_FIRESTORE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "ledger-firestore-database-id",
			Usage:       "Firestore database ID (default database when empty)",
			Destination: &c.FirestoreDatabaseID,
			Sources:     cli.EnvVars("HERALD_LEDGER_FIRESTORE_DATABASE_ID"),
		},
		&cli.StringFlag{
			Name:        "ledger-firestore-collection",
			Usage:       "Firestore collection of dispatch records",
			Value:       ledger.DefaultFirestoreCollection,
			Destination: &c.FirestoreCollection,
			Sources:     cli.EnvVars("HERALD_LEDGER_FIRESTORE_COLLECTION"),
		},
	}
}

// Build creates the ledger. The returned close function is never nil.
func (c *Ledger) Build(ctx context.Context) (interfaces.DispatchLedger, func() error, error) {
	switch c.Backend {
	case "memory", "":
		return ledger.NewMemory(), noClose, nil

	case "sqlite":
		db, err := ledger.NewSQLite(c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, closer(db), nil

	case "firestore":
		if c.FirestoreProjectID == "" {
			return nil, nil, goerr.New("ledger-firestore-project-id is required for the firestore ledger")
		}
		fs, err := ledger.NewFirestore(ctx, c.FirestoreProjectID, c.FirestoreDatabaseID, c.FirestoreCollection)
		if err != nil {
			return nil, nil, err
		}
		return fs, closer(fs), nil

	default:
		return nil, nil, goerr.New("unknown ledger backend", goerr.V("ledger", c.Backend))
	}
}

func noClose() error { return nil }

func closer(c io.Closer) func() error { return c.Close }
