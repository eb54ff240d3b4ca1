// Package warehouse loads transformed rows into Redshift. Each BatchUnit is
// loaded in a single transaction through a unit-scoped staging table, so a
// run either replaces the unit's slice of the target table completely or
// leaves it untouched.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/lib/pq"

	"github.com/LocalAtBrown/ata-core/internal/config"
	"github.com/LocalAtBrown/ata-core/internal/event"
)

// Columns of the events table, in load order. (site_name, event_id) is the
// composite key.
var Columns = []string{
	"site_name",
	"event_id",
	"event_name",
	"derived_tstamp",
	"domain_userid",
	"domain_sessionidx",
	"doc_height",
	"dvce_screenheight",
	"dvce_screenwidth",
	"br_viewheight",
	"br_viewwidth",
	"pp_yoffset_max",
	"page_urlpath",
	"page_urlquery",
	"page_urlfragment",
	"page_referrer",
	"refr_medium",
	"refr_source",
	"refr_urlhost",
	"refr_urlpath",
	"refr_urlquery",
	"refr_urlfragment",
	"useragent",
	"form_submit",
	"newsletter_form",
}

// Open connects to the warehouse. Redshift speaks the Postgres wire
// protocol, so the pq driver talks to it directly.
func Open(cfg config.WarehouseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open warehouse connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return db, nil
}

// Writer performs idempotent staged loads into one target table.
type Writer struct {
	db    *sql.DB
	table string
}

func NewWriter(db *sql.DB, table string) *Writer {
	return &Writer{db: db, table: table}
}

// StagingTable returns the unit-scoped staging table name. Temp tables are
// session-local, so concurrent loads of different units cannot collide even
// before the per-unit suffix is considered.
func (w *Writer) StagingTable(unit event.BatchUnit) string {
	return fmt.Sprintf("%s_stage_%s_%s", w.table, unit.Site.TableSuffix(), unit.Date.Format("20060102"))
}

// Load replaces the unit's slice of the target table with rows, atomically:
// stage, delete the unit's existing day, insert from staging, commit. Any
// failure rolls the transaction back, leaving the prior state intact, and
// surfaces as event.ErrLoadFailed — always safe to retry.
//
// A zero-row load still runs the delete and commits, so re-running a unit
// whose source shrank to nothing clears its stale rows.
func (w *Writer) Load(ctx context.Context, unit event.BatchUnit, rows []event.Row) (int, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, loadErr("begin", unit, err)
	}
	defer tx.Rollback()

	staging := w.StagingTable(unit)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s)",
		pq.QuoteIdentifier(staging), pq.QuoteIdentifier(w.table))); err != nil {
		return 0, loadErr("create staging table", unit, err)
	}

	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(staging, Columns...))
		if err != nil {
			return 0, loadErr("prepare copy", unit, err)
		}
		for i := range rows {
			if _, err := stmt.ExecContext(ctx, rowValues(&rows[i])...); err != nil {
				stmt.Close()
				return 0, loadErr("stage row", unit, err)
			}
		}
		// Flush the copy buffer.
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return 0, loadErr("flush copy", unit, err)
		}
		if err := stmt.Close(); err != nil {
			return 0, loadErr("close copy", unit, err)
		}
	}

	dayStart, dayEnd := unit.DayRange()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE site_name = $1 AND derived_tstamp >= $2 AND derived_tstamp < $3",
		pq.QuoteIdentifier(w.table)),
		unit.Site.String(), dayStart, dayEnd); err != nil {
		return 0, loadErr("delete unit slice", unit, err)
	}

	if len(rows) > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s",
			pq.QuoteIdentifier(w.table), pq.QuoteIdentifier(staging))); err != nil {
			return 0, loadErr("insert from staging", unit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, loadErr("commit", unit, err)
	}

	log.Printf("[warehouse] %s: loaded %d rows into %s", unit, len(rows), w.table)
	return len(rows), nil
}

func loadErr(step string, unit event.BatchUnit, err error) error {
	return fmt.Errorf("%s for %s: %v: %w", step, unit, err, event.ErrLoadFailed)
}

func rowValues(r *event.Row) []any {
	return []any{
		r.SiteName,
		r.EventID,
		r.EventName,
		r.DerivedTstamp,
		r.DomainUserID,
		r.DomainSessionIdx,
		r.DocHeight,
		r.DvceScreenHeight,
		r.DvceScreenWidth,
		r.BrViewHeight,
		r.BrViewWidth,
		r.PpYOffsetMax,
		r.PageURLPath,
		r.PageURLQuery,
		r.PageURLFragment,
		r.PageReferrer,
		r.RefrMedium,
		r.RefrSource,
		r.RefrURLHost,
		r.RefrURLPath,
		r.RefrURLQuery,
		r.RefrURLFragment,
		r.UserAgent,
		r.FormSubmitJSON,
		r.NewsletterForm,
	}
}
