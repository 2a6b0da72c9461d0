package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/focusd/sbh/internal/model"
)

// Ensure the sqlcipher driver is registered under the "sqlite3" name.
var _ = sqlcipher.ErrBusy

const eventsDBName = "events.db"

// schemaVersion is the current events schema revision, recorded as the
// sole row of the schema_version singleton table (spec.md §6).
const schemaVersion = 1

// sqliteSink writes events to a WAL-mode SQLite database for queryable
// stats/blame. It is opened with an empty SQLCipher passphrase: the
// driver's encryption machinery is present (as in the teacher's
// registry DSN) but unused here, since events carry no confidential data
// and plaintext querying via any sqlite3 CLI is a deliberate feature, not
// an oversight.
type sqliteSink struct {
	db *sql.DB
}

func newSQLiteSink(dataDir string) (*sqliteSink, error) {
	dbPath := filepath.Join(dataDir, eventsDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x''&_journal_mode=WAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &sqliteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate idempotently creates the events schema and the schema_version
// singleton table spec.md §6 requires, per spec.md §4.9.
func (s *sqliteSink) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY,
			ts TEXT NOT NULL,
			kind TEXT NOT NULL,
			mount TEXT,
			path TEXT,
			bytes INTEGER,
			payload BLOB
		);
	`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY CHECK (id = 0),
			version INTEGER NOT NULL
		);
	`); err != nil {
		return err
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO schema_version (id, version) VALUES (0, ?)`, schemaVersion)
	return err
}

func (s *sqliteSink) write(evt model.ActivityEvent) error {
	payload, err := json.Marshal(evt.Fields)
	if err != nil {
		payload = []byte("{}")
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO events (seq, ts, kind, mount, path, bytes, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.Seq, evt.Timestamp.Format(time.RFC3339Nano), string(evt.Kind), evt.MountID, evt.Path, evt.Bytes, payload,
	)
	return err
}

func (s *sqliteSink) close() error {
	return s.db.Close()
}
