// Lambda entrypoint. Each invocation carries one (site, date) unit; retries
// by the invoker are safe because loads are idempotent.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/LocalAtBrown/ata-core/internal/config"
	"github.com/LocalAtBrown/ata-core/internal/event"
	"github.com/LocalAtBrown/ata-core/internal/pipeline"
	"github.com/LocalAtBrown/ata-core/internal/site"
	"github.com/LocalAtBrown/ata-core/internal/source"
	"github.com/LocalAtBrown/ata-core/internal/transform"
	"github.com/LocalAtBrown/ata-core/internal/warehouse"
)

// Request is the invocation payload.
type Request struct {
	Site string `json:"site"`
	Date string `json:"date"` // YYYY-MM-DD, UTC
}

// Response embeds the run result; Warning is set for partial successes.
type Response struct {
	event.RunResult
	Warning string `json:"warning,omitempty"`
}

// runner is the slice of pipeline.Pipeline the handler needs.
type runner interface {
	Run(ctx context.Context, unit event.BatchUnit) event.RunResult
}

type handler struct {
	pipe runner
}

func (h *handler) handle(ctx context.Context, req Request) (Response, error) {
	s, err := site.ParseName(req.Site)
	if err != nil {
		return Response{}, err
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return Response{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", req.Date, err)
	}

	res := h.pipe.Run(ctx, event.NewBatchUnit(s, date))
	switch res.Status {
	case event.StatusFailure:
		// An error response makes the invoker retry; re-running is safe.
		// Lambda discards the payload on error, so the counts ride along
		// in the error text.
		return Response{RunResult: res}, fmt.Errorf("%s: %s (read=%d transformed=%d rejected=%d loaded=%d)",
			res.Unit, res.Error, res.RowsRead, res.RowsTransformed, res.RowsRejected, res.RowsLoaded)
	case event.StatusPartialSuccess:
		return Response{
			RunResult: res,
			Warning:   fmt.Sprintf("%d of %d records rejected", res.RowsRejected, res.RowsRead),
		}, nil
	default:
		return Response{RunResult: res}, nil
	}
}

func main() {
	ctx := context.Background()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("[handler] load config: %v", err)
	}

	db, err := warehouse.Open(cfg.Warehouse)
	if err != nil {
		log.Fatalf("[handler] connect warehouse: %v", err)
	}

	reader, err := source.NewReader(ctx, cfg.Source)
	if err != nil {
		log.Fatalf("[handler] init event source: %v", err)
	}

	pipe := pipeline.New(
		reader,
		transform.New(),
		warehouse.NewWriter(db, cfg.Pipeline.TargetTable),
		cfg.Pipeline.MaxRejectionSamples,
	)

	h := &handler{pipe: pipe}
	lambda.Start(h.handle)
}
