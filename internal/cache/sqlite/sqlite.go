package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	pducycle "github.com/bikeshack/pducycle/internal"
	"github.com/bikeshack/pducycle/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const TABLE_NAME = "pducycle_completed_cycles"

// History mirrors the cycle ledger into a sqlite table so completed
// cycles can be queried without parsing the ledger file. The ledger
// stays the source of truth for resume numbering.
type History struct {
	path string
}

func NewHistory(path string) *History {
	return &History{path: path}
}

func createHistoryIfNotExists(path string) (*sqlx.DB, error) {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		cycle 		INTEGER NOT NULL,
		timestamp 	TIMESTAMP,
		PRIMARY KEY (cycle)
	);
	`, TABLE_NAME)
	// sqlite won't create missing parent directories on open
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	db.MustExec(schema)
	return db, nil
}

// InsertCycleRecord stores one completed cycle, replacing any previous
// record with the same cycle number.
func (h *History) InsertCycleRecord(rec pducycle.CycleRecord) error {
	db, err := createHistoryIfNotExists(h.path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx := db.MustBegin()
	sql := fmt.Sprintf(`INSERT OR REPLACE INTO %s (cycle, timestamp)
	VALUES (:cycle, :timestamp);`, TABLE_NAME)
	if _, err := tx.NamedExec(sql, &rec); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute transaction: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

// GetCycleRecords returns every recorded cycle in cycle order.
func (h *History) GetCycleRecords() ([]pducycle.CycleRecord, error) {
	// check if path exists first to prevent creating the database
	exists, _ := util.PathExists(h.path)
	if !exists {
		return nil, fmt.Errorf("no history database found at %s", h.path)
	}

	db, err := sqlx.Open("sqlite3", h.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	defer db.Close()

	results := []pducycle.CycleRecord{}
	err = db.Select(&results, fmt.Sprintf("SELECT * FROM %s ORDER BY cycle ASC;", TABLE_NAME))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cycle records: %v", err)
	}
	return results, nil
}
