// Package anchors tracks which anchor ids have ever fired on this install.
//
// The tracker is a local convenience query only; it has no bearing on
// server-side targeting.
package anchors

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tgrady18/EchoedSDK/pkg/logger"
)

// Tracker records anchor hits in a small sqlite table.
type Tracker struct {
	mu sync.Mutex
	db *sqlx.DB
}

// Open opens (or creates) the tracker database under dataDir.
func Open(dataDir string) (*Tracker, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", "file:"+filepath.Join(dataDir, "anchors.db"))
	if err != nil {
		return nil, fmt.Errorf("opening anchor database: %w", err)
	}

	_, err = db.Exec(`create table if not exists anchor_hits(
		anchor_id    text not null primary key,
		first_hit_at datetime not null
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating anchor_hits table: %w", err)
	}

	return &Tracker{db: db}, nil
}

// Close closes the underlying database.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// MarkHit records that an anchor fired. Repeat hits keep the first time.
func (t *Tracker) MarkHit(anchorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(
		`insert into anchor_hits(anchor_id, first_hit_at) values(?, ?)
			on conflict(anchor_id) do nothing`,
		anchorID, time.Now().UTC())
	if err != nil {
		logger.WarnCF("anchors", "Recording anchor hit failed",
			map[string]any{"anchor_id": anchorID, "error": err.Error()})
	}
}

// HasHit reports whether an anchor has ever fired on this install.
func (t *Tracker) HasHit(anchorID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var one int
	err := t.db.Get(&one, `select 1 from anchor_hits where anchor_id = ?`, anchorID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.WarnCF("anchors", "Anchor lookup failed",
				map[string]any{"anchor_id": anchorID, "error": err.Error()})
		}
		return false
	}
	return true
}

// Hits returns every anchor id that has fired, in first-hit order.
func (t *Tracker) Hits() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	if err := t.db.Select(&ids,
		`select anchor_id from anchor_hits order by first_hit_at, anchor_id`); err != nil {
		logger.WarnCF("anchors", "Anchor scan failed", map[string]any{"error": err.Error()})
		return nil
	}
	return ids
}
