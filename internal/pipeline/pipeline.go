// Package pipeline orchestrates one ETL run over one (site, date) unit:
// read raw events, transform each in isolation, load the surviving rows in
// a single idempotent swap, and report counts.
package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/LocalAtBrown/ata-core/internal/event"
)

// EventReader streams raw events for a unit. Implemented by source.Reader.
type EventReader interface {
	ForEach(ctx context.Context, unit event.BatchUnit, fn func(event.Raw) error) error
}

// RowTransformer maps one raw event to a row or a rejection. Implemented by
// transform.Transformer.
type RowTransformer interface {
	Transform(raw event.Raw) (*event.Row, *event.Rejection)
}

// RowWriter loads a unit's full row set. Implemented by warehouse.Writer.
type RowWriter interface {
	Load(ctx context.Context, unit event.BatchUnit, rows []event.Row) (int, error)
}

// Run states, in order. Terminal state is done.
const (
	stateReading      = "reading"
	stateTransforming = "transforming"
	stateLoading      = "loading"
	stateDone         = "done"
)

// Pipeline runs single-threaded to completion within one invocation. It
// performs no retries of its own: run-level failures are surfaced to the
// caller, which may safely re-invoke because loads are idempotent.
type Pipeline struct {
	reader      EventReader
	transformer RowTransformer
	writer      RowWriter
	maxSamples  int
}

func New(r EventReader, t RowTransformer, w RowWriter, maxRejectionSamples int) *Pipeline {
	if maxRejectionSamples <= 0 {
		maxRejectionSamples = 25
	}
	return &Pipeline{reader: r, transformer: t, writer: w, maxSamples: maxRejectionSamples}
}

// Run executes one BatchUnit: reading → transforming → loading → done.
func (p *Pipeline) Run(ctx context.Context, unit event.BatchUnit) event.RunResult {
	start := time.Now()
	res := event.RunResult{Unit: unit.String()}

	log.Printf("[pipeline] %s: %s", unit, stateReading)

	var rows []event.Row
	rowIdx := map[string]int{} // event_id -> index into rows

	err := p.reader.ForEach(ctx, unit, func(raw event.Raw) error {
		res.RowsRead++

		row, rej := p.transformer.Transform(raw)
		if rej != nil {
			res.RowsRejected++
			if len(res.RejectionSamples) < p.maxSamples {
				res.RejectionSamples = append(res.RejectionSamples, *rej)
			}
			return nil
		}
		res.RowsTransformed++

		// The Snowplow stream can emit the same event_id more than once;
		// keep the earliest occurrence, which is the likeliest parent
		// (https://snowplow.io/blog/dealing-with-duplicate-event-ids/).
		if i, ok := rowIdx[row.EventID]; ok {
			res.RowsDeduplicated++
			if row.DerivedTstamp.Before(rows[i].DerivedTstamp) {
				rows[i] = *row
			}
			return nil
		}
		rowIdx[row.EventID] = len(rows)
		rows = append(rows, *row)
		return nil
	})

	switch {
	case err == nil:
		// fall through to loading
	case errors.Is(err, event.ErrEmptyBatch):
		// A unit with no source events is a valid zero-row outcome.
		res.Status = event.StatusSuccess
		res.Duration = time.Since(start).String()
		log.Printf("[pipeline] %s: %s (empty batch)", unit, stateDone)
		return res
	default:
		return p.fail(unit, res, start, err)
	}

	log.Printf("[pipeline] %s: %s (read=%d transformed=%d rejected=%d deduplicated=%d)",
		unit, stateTransforming, res.RowsRead, res.RowsTransformed, res.RowsRejected, res.RowsDeduplicated)

	log.Printf("[pipeline] %s: %s (%d rows)", unit, stateLoading, len(rows))
	loaded, err := p.writer.Load(ctx, unit, rows)
	if err != nil {
		return p.fail(unit, res, start, err)
	}
	res.RowsLoaded = loaded

	res.Status = event.StatusSuccess
	if res.RowsRejected > 0 {
		res.Status = event.StatusPartialSuccess
	}
	res.Duration = time.Since(start).String()
	log.Printf("[pipeline] %s: %s status=%s loaded=%d rejected=%d",
		unit, stateDone, res.Status, res.RowsLoaded, res.RowsRejected)
	return res
}

func (p *Pipeline) fail(unit event.BatchUnit, res event.RunResult, start time.Time, err error) event.RunResult {
	res.Status = event.StatusFailure
	res.Error = err.Error()
	res.Duration = time.Since(start).String()
	log.Printf("[pipeline] %s: %s status=%s: %v", unit, stateDone, res.Status, err)
	return res
}
