package tags

import (
	"database/sql"
	"encoding/json"
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

// Internal session-bookkeeping keys. They carry the internal category and
// survive RemoveTag and ClearUserTags.
const (
	KeyFirstSessionTime = "first_session_time"
	KeySessionCount     = "session_count"
	KeyLastSessionTime  = "last_session_time"
)

const schemaVersion = "2"

// Store is the persistent tag store. All read-modify-write operations are
// atomic with respect to each other; no partial write is ever observable.
type Store struct {
	mu             sync.Mutex
	db             *sqlx.DB
	sessionTimeout time.Duration
	now            func() time.Time
}

type tagRow struct {
	Key      string `db:"key"`
	Value    string `db:"value"`
	Type     string `db:"type"`
	Category string `db:"category"`
}

// Open opens (or creates) the tag database under dataDir, runs the one-time
// schema migration if an older layout is present, and seeds the session
// bookkeeping keys on first-ever initialization.
func Open(dataDir string, sessionTimeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tags.db")
	db, err := sqlx.Connect("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening tag database: %w", err)
	}

	s := &Store{db: db, sessionTimeout: sessionTimeout, now: time.Now}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.ensureSessionTags(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`create table if not exists tags(
		key      text not null primary key,
		value    text not null,
		type     text not null,
		category text not null
	)`)
	if err != nil {
		return fmt.Errorf("creating tags table: %w", err)
	}

	_, err = s.db.Exec(`create table if not exists meta(
		key   text not null primary key,
		value text not null
	)`)
	if err != nil {
		return fmt.Errorf("creating meta table: %w", err)
	}

	return nil
}

// migrate rewrites a v1 layout (a bare user_tags key/value table with
// untyped JSON scalars) into the typed tags table. The three session keys
// become internal, everything else user. Runs at most once: the schema
// version marker is written afterwards.
func (s *Store) migrate() error {
	var version string
	err := s.db.Get(&version, `select value from meta where key = 'schema_version'`)
	if err == nil {
		return nil // already migrated
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading schema version: %w", err)
	}

	var legacyName string
	err = s.db.Get(&legacyName,
		`select name from sqlite_master where type = 'table' and name = 'user_tags'`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for legacy table: %w", err)
	}

	if legacyName != "" {
		type legacyRow struct {
			Key   string `db:"key"`
			Value string `db:"value"`
		}
		var rows []legacyRow
		if err := s.db.Select(&rows, `select key, value from user_tags`); err != nil {
			return fmt.Errorf("reading legacy tags: %w", err)
		}

		migrated := 0
		for _, row := range rows {
			v, cat, ok := inferLegacy(row.Key, row.Value)
			if !ok {
				logger.WarnCF("tags", "Dropping unreadable legacy tag",
					map[string]any{"key": row.Key})
				continue
			}
			if err := s.write(row.Key, v, cat); err != nil {
				return fmt.Errorf("migrating tag %q: %w", row.Key, err)
			}
			migrated++
		}

		if _, err := s.db.Exec(`drop table user_tags`); err != nil {
			return fmt.Errorf("dropping legacy table: %w", err)
		}

		logger.InfoCF("tags", "Migrated legacy tag store",
			map[string]any{"tags": migrated})
	}

	if _, err := s.db.Exec(
		`insert into meta(key, value) values('schema_version', ?)`, schemaVersion); err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	return nil
}

// inferLegacy maps an untyped v1 scalar onto the typed shape.
func inferLegacy(key, rawJSON string) (Value, Category, bool) {
	cat := CategoryUser
	isSession := key == KeyFirstSessionTime || key == KeySessionCount || key == KeyLastSessionTime
	if isSession {
		cat = CategoryInternal
	}

	var raw any
	if err := json.Unmarshal([]byte(rawJSON), &raw); err != nil {
		return Value{}, cat, false
	}

	switch rv := raw.(type) {
	case float64:
		if key == KeyFirstSessionTime || key == KeyLastSessionTime {
			return TimestampEpoch(rv), cat, true
		}
		return Number(rv), cat, true
	case string:
		return String(rv), cat, true
	case bool:
		return Boolean(rv), cat, true
	}
	return Value{}, cat, false
}

// ensureSessionTags seeds the three session keys on first-ever init.
func (s *Store) ensureSessionTags() error {
	var count int
	if err := s.db.Get(&count,
		`select count(*) from tags where key = ?`, KeyFirstSessionTime); err != nil {
		return fmt.Errorf("checking session tags: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := s.now()
	for _, t := range []Tag{
		{Key: KeyFirstSessionTime, Value: Timestamp(now), Category: CategoryInternal},
		{Key: KeySessionCount, Value: Number(1), Category: CategoryInternal},
		{Key: KeyLastSessionTime, Value: Timestamp(now), Category: CategoryInternal},
	} {
		if err := s.write(t.Key, t.Value, t.Category); err != nil {
			return fmt.Errorf("seeding session tag %q: %w", t.Key, err)
		}
	}

	logger.InfoC("tags", "First session recorded")
	return nil
}

// write upserts a tag row. Callers hold the mutex (or run during Open).
func (s *Store) write(key string, v Value, cat Category) error {
	raw, err := json.Marshal(v.Raw())
	if err != nil {
		return fmt.Errorf("encoding tag value: %w", err)
	}
	_, err = s.db.Exec(`insert into tags(key, value, type, category) values(?, ?, ?, ?)
		on conflict(key) do update set value = excluded.value,
			type = excluded.type, category = excluded.category`,
		key, string(raw), string(v.Type()), string(cat))
	if err != nil {
		return fmt.Errorf("writing tag: %w", err)
	}
	return nil
}

func (s *Store) read(key string) (Tag, bool) {
	var row tagRow
	err := s.db.Get(&row, `select key, value, type, category from tags where key = ?`, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.ErrorCF("tags", "Tag read failed",
				map[string]any{"key": key, "error": err.Error()})
		}
		return Tag{}, false
	}
	v, err := parsePayload(Type(row.Type), json.RawMessage(row.Value))
	if err != nil {
		logger.ErrorCF("tags", "Stored tag is unreadable",
			map[string]any{"key": key, "error": err.Error()})
		return Tag{}, false
	}
	return Tag{Key: row.Key, Value: v, Category: Category(row.Category)}, true
}

// SetTag writes a tag under the given category. Re-setting an existing key
// always takes the new category (last category wins). Internal callers only;
// the public entry point is SetUserTag.
func (s *Store) SetTag(key string, v Value, cat Category) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.IsZero() {
		logger.WarnCF("tags", "Rejected tag with no value", map[string]any{"key": key})
		return
	}
	if err := s.write(key, v, cat); err != nil {
		logger.ErrorCF("tags", "Tag write failed",
			map[string]any{"key": key, "error": err.Error()})
	}
}

// SetUserTag writes a user-category tag. Reserved keys are rejected with a
// warning and no mutation.
func (s *Store) SetUserTag(key string, v Value) {
	if IsReservedKey(key) {
		logger.WarnCF("tags", "Rejected reserved tag key", map[string]any{"key": key})
		return
	}
	s.SetTag(key, v, CategoryUser)
}

// SetUserTagRaw validates a dynamically-typed value against the declared
// type before writing it. On mismatch the store is left untouched and the
// rejection is logged; callers cannot observe it except by reading back.
func (s *Store) SetUserTagRaw(key string, raw any, t Type) {
	v, err := FromRaw(raw, t)
	if err != nil {
		logger.WarnCF("tags", "Rejected tag with mismatched type",
			map[string]any{"key": key, "type": string(t), "error": err.Error()})
		return
	}
	s.SetUserTag(key, v)
}

// SetCustomerTag writes a customer-category tag (login identity flow).
func (s *Store) SetCustomerTag(key string, v Value) {
	s.SetTag(key, v, CategoryCustomer)
}

// Value returns the stored value for key.
func (s *Store) Value(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.read(key)
	return t.Value, ok
}

// TypeOf returns the declared type for key.
func (s *Store) TypeOf(key string) (Type, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.read(key)
	if !ok {
		return "", false
	}
	return t.Value.Type(), true
}

// CategoryOf returns the category for key.
func (s *Store) CategoryOf(key string) (Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.read(key)
	if !ok {
		return "", false
	}
	return t.Category, true
}

// All returns every tag in the store. Order is unspecified.
func (s *Store) All() []Tag {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []tagRow
	if err := s.db.Select(&rows, `select key, value, type, category from tags`); err != nil {
		logger.ErrorCF("tags", "Tag scan failed", map[string]any{"error": err.Error()})
		return nil
	}

	out := make([]Tag, 0, len(rows))
	for _, row := range rows {
		v, err := parsePayload(Type(row.Type), json.RawMessage(row.Value))
		if err != nil {
			logger.ErrorCF("tags", "Stored tag is unreadable",
				map[string]any{"key": row.Key, "error": err.Error()})
			continue
		}
		out = append(out, Tag{Key: row.Key, Value: v, Category: Category(row.Category)})
	}
	return out
}

// NetworkView projects all tags down to key -> raw value, the only
// representation ever sent to the backend.
func (s *Store) NetworkView() map[string]any {
	view := make(map[string]any)
	for _, t := range s.All() {
		view[t.Key] = t.Value.Raw()
	}
	return view
}

// Remove deletes a user tag. Internal and customer tags are protected:
// attempting to remove one is a logged no-op.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.read(key)
	if !ok {
		return
	}
	if t.Category != CategoryUser {
		logger.WarnCF("tags", "Refused to remove protected tag",
			map[string]any{"key": key, "category": string(t.Category)})
		return
	}
	if _, err := s.db.Exec(`delete from tags where key = ?`, key); err != nil {
		logger.ErrorCF("tags", "Tag delete failed",
			map[string]any{"key": key, "error": err.Error()})
	}
}

// ClearUserTags removes every user-category tag. Internal and customer tags
// are preserved unconditionally.
func (s *Store) ClearUserTags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`delete from tags where category = ?`, string(CategoryUser)); err != nil {
		logger.ErrorCF("tags", "Clearing user tags failed", map[string]any{"error": err.Error()})
	}
}

// ClearCustomerTags removes every customer-category tag (logout flow),
// leaving user and internal tags untouched.
func (s *Store) ClearCustomerTags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`delete from tags where category = ?`, string(CategoryCustomer)); err != nil {
		logger.ErrorCF("tags", "Clearing customer tags failed", map[string]any{"error": err.Error()})
	}
}

// OnForeground records a foreground transition. A gap longer than the
// session timeout since the last transition starts a new session.
func (s *Store) OnForeground() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	last, ok := s.read(KeyLastSessionTime)
	if ok {
		if lastAt, tok := last.Value.Time(); tok && now.Sub(lastAt) > s.sessionTimeout {
			count := 0.0
			if c, ok := s.read(KeySessionCount); ok {
				count, _ = c.Value.Float()
			}
			if err := s.write(KeySessionCount, Number(count+1), CategoryInternal); err != nil {
				logger.ErrorCF("tags", "Session count update failed",
					map[string]any{"error": err.Error()})
			}
			logger.InfoCF("tags", "New session started",
				map[string]any{"session_count": count + 1})
		}
	}
	if err := s.write(KeyLastSessionTime, Timestamp(now), CategoryInternal); err != nil {
		logger.ErrorCF("tags", "Session time update failed",
			map[string]any{"error": err.Error()})
	}
}

// OnBackground records a background transition.
func (s *Store) OnBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(KeyLastSessionTime, Timestamp(s.now()), CategoryInternal); err != nil {
		logger.ErrorCF("tags", "Session time update failed",
			map[string]any{"error": err.Error()})
	}
}
