// internal/riddles/sqlite.go
//
// SQLite-backed riddle bank.
// Responsibilities:
//   - Opening the SQLite database with safe defaults (WAL, busy timeout).
//   - Applying the embedded migrations (idempotent, recorded in _migrations).
//   - Seeding the bank from a catalog on first start.
//   - Serving random riddles per difficulty to the round engine.

package riddles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/riddlerush/assets"
	"github.com/robalobadob/riddlerush/internal/game"
)

// SQLiteBank implements game.RiddleProvider on top of a riddles table.
type SQLiteBank struct {
	db      *sql.DB
	Latency time.Duration
}

// OpenSQLiteBank opens dsn and applies migrations.
func OpenSQLiteBank(ctx context.Context, dsn string) (*SQLiteBank, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteBank{db: db}, nil
}

// Close releases the database handle.
func (b *SQLiteBank) Close() error { return b.db.Close() }

/**
 * openDB opens (and creates if missing) a SQLite database file.
 *
 * - Ensures parent directory exists for relative DSNs (e.g. ./data/riddles.db).
 * - Configures busy timeout and WAL journaling mode.
 * - ":memory:" databases are pinned to one connection so every query sees
 *   the same database.
 */
func openDB(dsn string) (*sql.DB, error) {
	memory := strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	if !memory {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	return db, nil
}

/**
 * migrate applies the embedded SQL migrations.
 *
 * - Uses a _migrations table to track applied files.
 * - Executes each *.sql file in lexical order inside its own transaction.
 * - Skips files already applied.
 */
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	mfs, err := assets.Migrations()
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	files, err := fs.Glob(mfs, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		var done int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			log.Debug().Str("migration", f).Msg("already applied")
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		sqlBytes, err := fs.ReadFile(mfs, f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		log.Info().Str("migration", f).Msg("applied")
	}
	return nil
}

// Count returns the number of stored riddles.
func (b *SQLiteBank) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM riddles`).Scan(&n)
	return n, err
}

// Seed inserts the catalog when the bank is empty and reports how many rows
// were added. Existing banks are left alone.
func (b *SQLiteBank) Seed(ctx context.Context, c *Catalog) (int, error) {
	n, err := b.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	return b.Insert(ctx, c.Entries())
}

// Insert adds entries, ignoring riddles whose text is already stored.
func (b *SQLiteBank) Insert(ctx context.Context, entries []Entry) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO riddles (difficulty, answer, text) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	added := 0
	for _, e := range entries {
		res, err := stmt.ExecContext(ctx, string(e.Difficulty), e.Riddle.Answer, e.Riddle.Text)
		if err != nil {
			return 0, fmt.Errorf("insert %q: %w", e.Riddle.Answer, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// FetchRiddle picks a random stored riddle of difficulty d, falling back to
// any difficulty when none match.
func (b *SQLiteBank) FetchRiddle(ctx context.Context, d game.Difficulty) (game.Riddle, error) {
	if err := wait(ctx, b.Latency); err != nil {
		return game.Riddle{}, err
	}

	var r game.Riddle
	err := b.db.QueryRowContext(ctx,
		`SELECT text, answer FROM riddles WHERE difficulty=? ORDER BY RANDOM() LIMIT 1`,
		string(d),
	).Scan(&r.Text, &r.Answer)
	if errors.Is(err, sql.ErrNoRows) {
		err = b.db.QueryRowContext(ctx,
			`SELECT text, answer FROM riddles ORDER BY RANDOM() LIMIT 1`,
		).Scan(&r.Text, &r.Answer)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return game.Riddle{}, ErrEmpty
	}
	if err != nil {
		return game.Riddle{}, fmt.Errorf("select riddle: %w", err)
	}
	return r, nil
}

// Catalog loads every stored riddle into memory.
func (b *SQLiteBank) Catalog(ctx context.Context) (*Catalog, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT difficulty, answer, text FROM riddles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var d string
		var e Entry
		if err := rows.Scan(&d, &e.Riddle.Answer, &e.Riddle.Text); err != nil {
			return nil, err
		}
		e.Difficulty = game.Difficulty(d)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NewCatalog(entries), nil
}

// Stats returns counts per difficulty of the stored riddles, which may
// differ from the catalog the bank was first seeded from.
func (b *SQLiteBank) Stats(ctx context.Context) (map[game.Difficulty]int, error) {
	c, err := b.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load riddles: %w", err)
	}
	return c.Stats(), nil
}
