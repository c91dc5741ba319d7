package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"arenda/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection and the property seed cache. All calendar
// mutations go through the validated transition write in calendar.go.
type DB struct {
	db  *sql.DB
	log zerolog.Logger

	mu         sync.RWMutex
	properties map[int64]*models.Property
	byUID      map[string]*models.Property
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// busy_timeout keeps concurrent writers from failing fast on SQLITE_BUSY;
	// immediate transactions take the write lock at BEGIN so check-then-write
	// transactions serialize instead of deadlocking on lock upgrade.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "database").Logger()
	}
	log.Info().Str("path", path).Msg("database initialized")

	return &DB{
		db:         db,
		log:        log,
		properties: make(map[int64]*models.Property),
		byUID:      make(map[string]*models.Property),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS calendar_days (
            property_id INTEGER NOT NULL,
            day TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'available',
            lock_reason TEXT,
            booking_id INTEGER,
            auction_id INTEGER,
            hold_expires_at DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (property_id, day)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            property_id INTEGER NOT NULL,
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            unit_price REAL NOT NULL DEFAULT 0,
            amount REAL NOT NULL DEFAULT 0,
            service_fee REAL NOT NULL DEFAULT 0,
            source TEXT NOT NULL DEFAULT 'direct',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS auctions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            property_id INTEGER NOT NULL,
            stay_start TEXT NOT NULL,
            stay_end TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'active',
            current_price REAL NOT NULL DEFAULT 0,
            max_bid_id INTEGER,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		// Sweep and reverse-lookup paths.
		`CREATE INDEX IF NOT EXISTS idx_calendar_status_day ON calendar_days(status, day, property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_booking_id ON calendar_days(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_auction_id ON calendar_days(auction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_property_id ON bookings(property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_auctions_property_id ON auctions(property_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so calendar writes share one
// code path inside and outside transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SetProperties replaces the property seed cache.
func (db *DB) SetProperties(properties []*models.Property) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.properties = make(map[int64]*models.Property, len(properties))
	db.byUID = make(map[string]*models.Property, len(properties))
	for _, p := range properties {
		db.properties[p.ID] = p
		if p.UID != "" {
			db.byUID[p.UID] = p
		}
	}
}

// PropertyByID returns a seeded property or ErrUnknownProperty.
func (db *DB) PropertyByID(id int64) (*models.Property, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.properties[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownProperty, id)
	}
	return p, nil
}

// PropertyByUID resolves the external listing UID to a property.
func (db *DB) PropertyByUID(uid string) (*models.Property, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.byUID[uid]
	if !ok {
		return nil, fmt.Errorf("%w: uid %s", ErrUnknownProperty, uid)
	}
	return p, nil
}

// Properties returns the seeded properties.
func (db *DB) Properties() []*models.Property {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*models.Property, 0, len(db.properties))
	for _, p := range db.properties {
		out = append(out, p)
	}
	return out
}

func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, nil)
}

func (db *DB) Close() error {
	return db.db.Close()
}
