package event

import (
	"fmt"
	"time"

	"github.com/LocalAtBrown/ata-core/internal/site"
)

// BatchUnit identifies one ETL run: one partner site, one UTC calendar date.
// It is the idempotency key for loading — re-running the same unit converges
// to the same warehouse state.
type BatchUnit struct {
	Site site.Name
	Date time.Time // UTC midnight
}

// NewBatchUnit truncates date to UTC midnight.
func NewBatchUnit(s site.Name, date time.Time) BatchUnit {
	d := date.UTC()
	return BatchUnit{
		Site: s,
		Date: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
	}
}

func (u BatchUnit) String() string {
	return fmt.Sprintf("%s/%s", u.Site, u.Date.Format("2006-01-02"))
}

// DayRange returns the unit's [start, end) UTC interval.
func (u BatchUnit) DayRange() (time.Time, time.Time) {
	return u.Date, u.Date.Add(24 * time.Hour)
}

// Raw is one Snowplow event exactly as decoded from the enriched NDJSON
// stream: a field-name → value mapping, tagged with the unit it was read
// under. Never mutated after the reader produces it.
type Raw struct {
	Unit   BatchUnit
	Fields map[string]any
}

// Row is a validated, typed warehouse record matching the events table.
// Produced only by the transformer; immutable afterwards.
type Row struct {
	SiteName         string
	EventID          string
	EventName        string
	DerivedTstamp    time.Time
	DomainUserID     string
	DomainSessionIdx int64
	DocHeight        float64
	DvceScreenHeight float64
	DvceScreenWidth  float64
	BrViewHeight     *float64
	BrViewWidth      *float64
	PpYOffsetMax     *float64
	PageURLPath      string
	PageURLQuery     *string
	PageURLFragment  *string
	PageReferrer     *string
	RefrMedium       string
	RefrSource       string
	RefrURLHost      *string
	RefrURLPath      *string
	RefrURLQuery     *string
	RefrURLFragment  *string
	UserAgent        *string
	FormSubmitJSON   *string
	NewsletterForm   bool
}

// Reason codes for rejected records.
type Reason string

const (
	ReasonMissingField  Reason = "missing_field"
	ReasonTypeCoercion  Reason = "type_coercion"
	ReasonInvalidFormat Reason = "invalid_format"
)

// Rejection pairs a failed record with why it failed. Rejections are data,
// not errors: they are counted and reported, never loaded and never fatal.
type Rejection struct {
	EventID string `json:"event_id,omitempty"`
	Field   string `json:"field"`
	Reason  Reason `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

func (r Rejection) String() string {
	if r.EventID == "" {
		return fmt.Sprintf("%s: %s (%s)", r.Reason, r.Field, r.Detail)
	}
	return fmt.Sprintf("%s: %s event=%s (%s)", r.Reason, r.Field, r.EventID, r.Detail)
}

// Status is the terminal state of one BatchUnit run.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailure        Status = "failure"
)

// RunResult summarises one BatchUnit execution. It is returned to the
// caller (Lambda handler or backfill driver) and not persisted here.
type RunResult struct {
	Unit             string      `json:"unit"`
	Status           Status      `json:"status"`
	RowsRead         int         `json:"rows_read"`
	RowsTransformed  int         `json:"rows_transformed"`
	RowsRejected     int         `json:"rows_rejected"`
	RowsDeduplicated int         `json:"rows_deduplicated"`
	RowsLoaded       int         `json:"rows_loaded"`
	RejectionSamples []Rejection `json:"rejection_samples,omitempty"`
	Error            string      `json:"error,omitempty"`
	Duration         string      `json:"duration,omitempty"`
}
