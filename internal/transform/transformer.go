// Package transform validates raw Snowplow events and maps them into
// warehouse rows. Failures are per-record data, never errors: one malformed
// event can never abort a batch.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LocalAtBrown/ata-core/internal/event"
	"github.com/LocalAtBrown/ata-core/internal/site"
)

// Transformer maps one raw event to either a warehouse row or a rejection.
// It holds no state and no clock, so the same input always yields the same
// output.
type Transformer struct{}

func New() *Transformer { return &Transformer{} }

// Timestamp layouts the Snowplow enriched stream emits. All values are UTC
// (https://discourse.snowplow.io/t/what-timezones-are-the-timestamps-set-in/622).
var tstampLayouts = []string{
	"2006-01-02 15:04:05.999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// Transform validates raw in three passes: required-field presence, type
// coercion, then identifier format. Exactly one of (row, rejection) is
// non-nil.
func (t *Transformer) Transform(raw event.Raw) (*event.Row, *event.Rejection) {
	if raw.Fields == nil {
		return nil, &event.Rejection{
			Field:  "record",
			Reason: event.ReasonInvalidFormat,
			Detail: "line is not valid JSON",
		}
	}

	// Grabbed early so rejections can be tied back to the source event;
	// format-validated in the last pass.
	eventID, _ := stringField(raw.Fields, event.FieldEventID)

	for _, f := range event.RequiredFields {
		if isMissing(raw.Fields[f]) {
			return nil, &event.Rejection{
				EventID: eventID,
				Field:   f,
				Reason:  event.ReasonMissingField,
				Detail:  "required field absent or null",
			}
		}
	}

	row := &event.Row{SiteName: raw.Unit.Site.String(), EventID: eventID}
	if rej := t.coerce(raw, row); rej != nil {
		rej.EventID = eventID
		return nil, rej
	}

	// event_id is half of the (site_name, event_id) warehouse key, so a
	// malformed one is rejected instead of mapped to a sentinel.
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, &event.Rejection{
			EventID: eventID,
			Field:   event.FieldEventID,
			Reason:  event.ReasonInvalidFormat,
			Detail:  "event_id is not a UUID",
		}
	}

	return row, nil
}

func (t *Transformer) coerce(raw event.Raw, row *event.Row) *event.Rejection {
	fields := raw.Fields

	ts, err := timeField(fields[event.FieldDerivedTstamp])
	if err != nil {
		return coercionRejection(event.FieldDerivedTstamp, err)
	}
	// The load swap deletes and rewrites only the unit's own day. A row
	// timestamped outside it would land beyond that window and survive
	// re-runs, so it is rejected here instead of loaded.
	if dayStart, dayEnd := raw.Unit.DayRange(); ts.Before(dayStart) || !ts.Before(dayEnd) {
		return &event.Rejection{
			Field:  event.FieldDerivedTstamp,
			Reason: event.ReasonInvalidFormat,
			Detail: fmt.Sprintf("timestamp %s is outside batch date %s", ts.Format(time.RFC3339), raw.Unit.Date.Format("2006-01-02")),
		}
	}
	row.DerivedTstamp = ts

	idx, err := intField(fields[event.FieldDomainSessionIdx])
	if err != nil {
		return coercionRejection(event.FieldDomainSessionIdx, err)
	}
	row.DomainSessionIdx = idx

	for _, fc := range []struct {
		name string
		dst  *float64
	}{
		{event.FieldDocHeight, &row.DocHeight},
		{event.FieldDvceScreenHeight, &row.DvceScreenHeight},
		{event.FieldDvceScreenWidth, &row.DvceScreenWidth},
	} {
		v, err := floatField(fields[fc.name])
		if err != nil {
			return coercionRejection(fc.name, err)
		}
		*fc.dst = v
	}

	for _, fc := range []struct {
		name string
		dst  **float64
	}{
		{event.FieldBrViewHeight, &row.BrViewHeight},
		{event.FieldBrViewWidth, &row.BrViewWidth},
		{event.FieldPpYOffsetMax, &row.PpYOffsetMax},
	} {
		if isMissing(fields[fc.name]) {
			continue
		}
		v, err := floatField(fields[fc.name])
		if err != nil {
			return coercionRejection(fc.name, err)
		}
		*fc.dst = &v
	}

	row.DomainUserID, _ = stringField(fields, event.FieldDomainUserID)
	row.PageURLPath, _ = stringField(fields, event.FieldPageURLPath)
	row.PageURLQuery = optString(fields, event.FieldPageURLQuery)
	row.PageURLFragment = optString(fields, event.FieldPageURLFragment)
	row.PageReferrer = optString(fields, event.FieldPageReferrer)
	row.RefrURLHost = optString(fields, event.FieldRefrURLHost)
	row.RefrURLPath = optString(fields, event.FieldRefrURLPath)
	row.RefrURLQuery = optString(fields, event.FieldRefrURLQuery)
	row.RefrURLFragment = optString(fields, event.FieldRefrURLFragment)
	row.UserAgent = optString(fields, event.FieldUserAgent)

	name, _ := stringField(fields, event.FieldEventName)
	if !event.KnownEventNames[name] {
		name = event.ValueUnknown
	}
	row.EventName = name

	medium, _ := stringField(fields, event.FieldRefrMedium)
	if !event.KnownRefrMediums[medium] {
		medium = event.ValueUnknown
	}
	row.RefrMedium = medium

	refrSource, ok := stringField(fields, event.FieldRefrSource)
	if !ok || refrSource == "" {
		refrSource = event.ValueUnknown
	}
	row.RefrSource = refrSource

	if row.EventName == event.EventNameSubmitForm && !isMissing(fields[event.FieldFormSubmit]) {
		fs, err := site.ParseFormSubmit(fields[event.FieldFormSubmit])
		if err != nil {
			return coercionRejection(event.FieldFormSubmit, err)
		}
		// Re-marshal the parsed struct so the stored payload is canonical
		// and byte-stable across runs.
		b, err := json.Marshal(fs)
		if err != nil {
			return coercionRejection(event.FieldFormSubmit, err)
		}
		s := string(b)
		row.FormSubmitJSON = &s
		row.NewsletterForm = site.IsNewsletterForm(raw.Unit.Site, row.PageURLPath, fs)
	}

	return nil
}

func coercionRejection(field string, err error) *event.Rejection {
	return &event.Rejection{
		Field:  field,
		Reason: event.ReasonTypeCoercion,
		Detail: err.Error(),
	}
}

// isMissing treats null and empty string as absent. The enriched stream
// emits empty strings for unset TSV columns.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func stringField(fields map[string]any, name string) (string, bool) {
	v, ok := fields[name]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func optString(fields map[string]any, name string) *string {
	if isMissing(fields[name]) {
		return nil
	}
	s, ok := stringField(fields, name)
	if !ok {
		return nil
	}
	return &s
}

func floatField(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n.String())
		}
		f = parsed
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number")
	}
	return f, nil
}

func intField(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, nil
		}
		return 0, fmt.Errorf("not an integer: %q", n)
	}

	// Fractional, overflowing, or non-finite values are rejected rather
	// than truncated.
	f, err := floatField(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	return int64(f), nil
}

func timeField(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp has unexpected type %T", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range tstampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
