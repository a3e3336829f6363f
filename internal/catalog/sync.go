package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/meterthing/internal/thing"
)

// Logger is the logging interface used by Sync.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Sync compares the stored schema of th with its current properties, logs
// any drift and stores the current schema.
//
// A thing seen for the first time is logged once at Info. Drift against an
// existing schema is logged at Warn, one line per added, removed or changed
// property, since it usually means the meter firmware or the decoder's
// register list changed.
//
// Parameters:
//   - ctx: Context for the database calls
//   - repo: Where schemas are stored
//   - th: The initialized Thing
//   - logger: Receives the drift report; nil discards it
//
// Returns:
//   - Drift: What changed relative to the stored schema
//   - error: If loading or storing fails
func Sync(ctx context.Context, repo Repository, th *thing.Thing, logger Logger) (Drift, error) {
	stored, err := repo.Load(ctx, th.ID())
	if err != nil {
		return Drift{}, fmt.Errorf("loading catalog: %w", err)
	}

	current := EntriesFor(th)
	drift := Compare(stored, current)

	if logger != nil {
		report(logger, th.ID(), len(stored) == 0, drift)
	}

	if err := repo.Replace(ctx, th.ID(), current, time.Now()); err != nil {
		return drift, fmt.Errorf("storing catalog: %w", err)
	}
	return drift, nil
}

func report(logger Logger, thingID string, first bool, d Drift) {
	if first {
		logger.Info("property catalog created", "thing_id", thingID, "properties", len(d.Added))
		return
	}
	if d.Empty() {
		logger.Info("property catalog unchanged", "thing_id", thingID)
		return
	}

	for _, e := range d.Added {
		logger.Warn("property added", "thing_id", thingID, "property", e.Name, "kind", e.Kind.String(), "unit", e.Unit)
	}
	for _, e := range d.Removed {
		logger.Warn("property removed", "thing_id", thingID, "property", e.Name,
			"last_seen", e.LastSeen.Format(time.RFC3339))
	}
	for _, c := range d.Changed {
		logger.Warn("property changed", "thing_id", thingID, "property", c.Name,
			"field", c.Field, "old", c.Old, "new", c.New)
	}
}
