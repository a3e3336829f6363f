package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/meterthing/internal/infrastructure/database"
	"github.com/nerrad567/meterthing/internal/obis"
)

// Repository stores property schemas per thing.
type Repository interface {
	// Load returns the stored schema of thingID in position order. An
	// unknown thing has an empty schema.
	Load(ctx context.Context, thingID string) ([]Entry, error)

	// Replace makes entries the stored schema of thingID. Names already
	// present keep their FirstSeen; every entry gets LastSeen = now; names
	// missing from entries are removed.
	Replace(ctx context.Context, thingID string, entries []Entry, now time.Time) error
}

// SQLiteRepository implements Repository on the property_catalog table.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Load returns the stored schema of thingID.
func (r *SQLiteRepository) Load(ctx context.Context, thingID string) ([]Entry, error) {
	if thingID == "" {
		return nil, ErrInvalidThingID
	}

	const query = `SELECT name, position, kind, unit, first_seen_at, last_seen_at
		FROM property_catalog WHERE thing_id = ? ORDER BY position, name`
	rows, err := r.db.QueryContext(ctx, query, thingID)
	if err != nil {
		return nil, fmt.Errorf("querying catalog for %s: %w", thingID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                   Entry
			kind                string
			unit                sql.NullString
			firstSeen, lastSeen string
		)
		if err := rows.Scan(&e.Name, &e.Position, &kind, &unit, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}

		k, ok := obis.ParseKind(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %s has kind %q", ErrCorruptEntry, e.Name, kind)
		}
		e.Kind = k
		e.Unit = unit.String
		if e.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
			return nil, fmt.Errorf("%w: %s first_seen_at: %w", ErrCorruptEntry, e.Name, err)
		}
		if e.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
			return nil, fmt.Errorf("%w: %s last_seen_at: %w", ErrCorruptEntry, e.Name, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog rows: %w", err)
	}
	return out, nil
}

// Replace stores entries as the schema of thingID in one transaction.
func (r *SQLiteRepository) Replace(ctx context.Context, thingID string, entries []Entry, now time.Time) error {
	if thingID == "" {
		return ErrInvalidThingID
	}
	ts := now.UTC().Format(time.RFC3339Nano)

	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		// Rows not touched by the upserts below are removed afterwards.
		if _, err := tx.ExecContext(ctx,
			`UPDATE property_catalog SET position = -1 WHERE thing_id = ?`, thingID); err != nil {
			return fmt.Errorf("marking catalog for %s: %w", thingID, err)
		}

		const upsert = `INSERT INTO property_catalog
			(thing_id, name, position, kind, unit, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (thing_id, name) DO UPDATE SET
				position = excluded.position,
				kind = excluded.kind,
				unit = excluded.unit,
				last_seen_at = excluded.last_seen_at`
		for i, e := range entries {
			if _, err := tx.ExecContext(ctx, upsert,
				thingID, e.Name, i, e.Kind.String(), nullUnit(e.Unit), ts, ts); err != nil {
				return fmt.Errorf("storing catalog entry %s: %w", e.Name, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM property_catalog WHERE thing_id = ? AND position = -1`, thingID); err != nil {
			return fmt.Errorf("pruning catalog for %s: %w", thingID, err)
		}
		return nil
	})
}

func nullUnit(unit string) sql.NullString {
	return sql.NullString{String: unit, Valid: unit != ""}
}
