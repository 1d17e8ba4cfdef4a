package diagnostics

import (
	"database/sql"

	"github.com/ecowatt/gateway/internal/errors"
)

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS poll_cycles (
			timestamp        INTEGER PRIMARY KEY,
			total_polls      INTEGER,
			successful_polls INTEGER,
			failed_polls     INTEGER,
			last_error       TEXT
		)
	`)
	if err != nil {
		return errors.New().Wrap(ErrSchemaInit, err)
	}

	return nil
}
