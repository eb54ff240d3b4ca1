// Package backfill re-runs the pipeline over a historical range of dates
// for one partner site.
package backfill

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/LocalAtBrown/ata-core/internal/event"
	"github.com/LocalAtBrown/ata-core/internal/site"
)

// OnFailure controls whether the driver stops at the first failed unit.
type OnFailure string

const (
	Halt     OnFailure = "halt"
	Continue OnFailure = "continue"
)

// ParseOnFailure validates a policy string.
func ParseOnFailure(s string) (OnFailure, error) {
	switch OnFailure(s) {
	case Halt, Continue:
		return OnFailure(s), nil
	default:
		return "", fmt.Errorf("invalid on_failure policy %q (want halt or continue)", s)
	}
}

// Runner executes one BatchUnit. Implemented by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, unit event.BatchUnit) event.RunResult
}

// Driver invokes the runner once per date, sequentially. Units must not be
// re-run in parallel with themselves, and sequential iteration guarantees
// that.
type Driver struct {
	runner    Runner
	onFailure OnFailure
}

func NewDriver(runner Runner, onFailure OnFailure) *Driver {
	return &Driver{runner: runner, onFailure: onFailure}
}

// Run covers `days` consecutive dates going forward from start inclusive,
// one pipeline run per date. With the halt policy it stops after the first
// failed unit; with continue it runs the whole range regardless. All results
// produced so far are returned either way.
func (d *Driver) Run(ctx context.Context, s site.Name, start time.Time, days int) []event.RunResult {
	var results []event.RunResult
	for i := 0; i < days; i++ {
		unit := event.NewBatchUnit(s, start.AddDate(0, 0, i))
		res := d.runner.Run(ctx, unit)
		results = append(results, res)
		if res.Status == event.StatusFailure && d.onFailure == Halt {
			log.Printf("[backfill] halting after failed unit %s", unit)
			break
		}
	}
	return results
}

// Summarize aggregates a backfill's results into one line per status plus
// totals.
func Summarize(results []event.RunResult) (succeeded, partial, failed, loaded int) {
	for _, r := range results {
		switch r.Status {
		case event.StatusSuccess:
			succeeded++
		case event.StatusPartialSuccess:
			partial++
		case event.StatusFailure:
			failed++
		}
		loaded += r.RowsLoaded
	}
	return succeeded, partial, failed, loaded
}
