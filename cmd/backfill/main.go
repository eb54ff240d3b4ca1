// Backfill CLI: reprocesses a forward range of dates for one partner site,
// one pipeline run per date, sequentially.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/LocalAtBrown/ata-core/internal/backfill"
	"github.com/LocalAtBrown/ata-core/internal/config"
	"github.com/LocalAtBrown/ata-core/internal/event"
	"github.com/LocalAtBrown/ata-core/internal/pipeline"
	"github.com/LocalAtBrown/ata-core/internal/site"
	"github.com/LocalAtBrown/ata-core/internal/source"
	"github.com/LocalAtBrown/ata-core/internal/transform"
	"github.com/LocalAtBrown/ata-core/internal/warehouse"
)

func main() {
	var (
		siteFlag      = flag.String("site", "", "partner site slug (required)")
		startDateFlag = flag.String("start-date", "", "first date to backfill, YYYY-MM-DD (default: yesterday UTC)")
		daysFlag      = flag.Int("days", 1, "number of consecutive dates to cover, going forward from start-date")
		onFailureFlag = flag.String("on-failure", "", "halt or continue (default from config)")
		configFlag    = flag.String("config", "config.yaml", "path to config file")
	)
	flag.Parse()

	s, err := site.ParseName(*siteFlag)
	if err != nil {
		log.Fatalf("[backfill] %v", err)
	}
	if *daysFlag < 1 {
		log.Fatalf("[backfill] -days must be at least 1")
	}

	start := time.Now().UTC().AddDate(0, 0, -1)
	if *startDateFlag != "" {
		start, err = time.Parse("2006-01-02", *startDateFlag)
		if err != nil {
			log.Fatalf("[backfill] invalid -start-date %q: %v", *startDateFlag, err)
		}
	}

	cfg, err := config.LoadFromEnv(*configFlag)
	if err != nil {
		log.Fatalf("[backfill] load config: %v", err)
	}

	policyStr := cfg.Backfill.OnFailure
	if *onFailureFlag != "" {
		policyStr = *onFailureFlag
	}
	policy, err := backfill.ParseOnFailure(policyStr)
	if err != nil {
		log.Fatalf("[backfill] %v", err)
	}

	ctx := context.Background()

	db, err := warehouse.Open(cfg.Warehouse)
	if err != nil {
		log.Fatalf("[backfill] connect warehouse: %v", err)
	}
	defer db.Close()

	reader, err := source.NewReader(ctx, cfg.Source)
	if err != nil {
		log.Fatalf("[backfill] init event source: %v", err)
	}

	pipe := pipeline.New(
		reader,
		transform.New(),
		warehouse.NewWriter(db, cfg.Pipeline.TargetTable),
		cfg.Pipeline.MaxRejectionSamples,
	)

	execStart := time.Now()
	driver := backfill.NewDriver(pipe, policy)
	results := driver.Run(ctx, s, start, *daysFlag)

	succeeded, partial, failed, loaded := backfill.Summarize(results)
	log.Printf("[backfill] %s: %d units (%d ok, %d partial, %d failed), %d rows loaded in %s",
		s, len(results), succeeded, partial, failed, loaded, time.Since(execStart).Round(time.Millisecond))
	for _, r := range results {
		if r.Status != event.StatusSuccess {
			log.Printf("[backfill]   %s: %s %s", r.Unit, r.Status, r.Error)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}
