package transform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LocalAtBrown/ata-core/internal/event"
	"github.com/LocalAtBrown/ata-core/internal/site"
)

const testEventID = "f47ac10b-58cc-4372-a567-0e02b2c3d479"

func testUnit() event.BatchUnit {
	return event.NewBatchUnit(site.AfroLA, time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC))
}

func validFields() map[string]any {
	return map[string]any{
		"event_id":          testEventID,
		"event_name":        "page_view",
		"derived_tstamp":    "2023-08-01 12:30:45.123",
		"domain_userid":     "2164f0a5f9f77de2",
		"domain_sessionidx": json.Number("3"),
		"doc_height":        json.Number("4833"),
		"dvce_screenheight": json.Number("1080"),
		"dvce_screenwidth":  json.Number("1920"),
		"br_viewheight":     json.Number("937"),
		"page_urlpath":      "/event-directory/",
		"page_urlquery":     "utm_source=newsletter",
		"refr_medium":       "search",
		"refr_source":       "Google",
		"useragent":         "Mozilla/5.0",
	}
}

func rawWith(fields map[string]any) event.Raw {
	return event.Raw{Unit: testUnit(), Fields: fields}
}

func TestTransformValidEvent(t *testing.T) {
	row, rej := New().Transform(rawWith(validFields()))
	require.Nil(t, rej)
	require.NotNil(t, row)

	assert.Equal(t, "afro-la", row.SiteName)
	assert.Equal(t, testEventID, row.EventID)
	assert.Equal(t, "page_view", row.EventName)
	assert.Equal(t, time.Date(2023, 8, 1, 12, 30, 45, 123000000, time.UTC), row.DerivedTstamp)
	assert.Equal(t, int64(3), row.DomainSessionIdx)
	assert.Equal(t, 4833.0, row.DocHeight)
	assert.Equal(t, 1080.0, row.DvceScreenHeight)
	require.NotNil(t, row.BrViewHeight)
	assert.Equal(t, 937.0, *row.BrViewHeight)
	assert.Nil(t, row.BrViewWidth)
	assert.Equal(t, "/event-directory/", row.PageURLPath)
	require.NotNil(t, row.PageURLQuery)
	assert.Equal(t, "utm_source=newsletter", *row.PageURLQuery)
	assert.Equal(t, "search", row.RefrMedium)
	assert.Equal(t, "Google", row.RefrSource)
	assert.False(t, row.NewsletterForm)
}

func TestTransformDeterministic(t *testing.T) {
	fields := validFields()
	fields["event_name"] = "submit_form"
	fields["unstruct_event_com_snowplowanalytics_snowplow_submit_form_1"] = map[string]any{
		"formId":      "mc-embedded-subscribe",
		"formClasses": []any{"newsletter-form"},
		"elements": []any{
			map[string]any{"name": "EMAIL", "nodeName": "INPUT", "type": "email"},
		},
	}

	first, rej := New().Transform(rawWith(fields))
	require.Nil(t, rej)
	for i := 0; i < 10; i++ {
		again, rej := New().Transform(rawWith(fields))
		require.Nil(t, rej)
		assert.Equal(t, first, again)
	}
	require.NotNil(t, first.FormSubmitJSON)
}

func TestTransformMissingRequiredField(t *testing.T) {
	for _, field := range event.RequiredFields {
		t.Run(field, func(t *testing.T) {
			fields := validFields()
			delete(fields, field)
			row, rej := New().Transform(rawWith(fields))
			assert.Nil(t, row)
			require.NotNil(t, rej)
			assert.Equal(t, event.ReasonMissingField, rej.Reason)
			assert.Equal(t, field, rej.Field)
		})
	}
}

func TestTransformNullCountsAsMissing(t *testing.T) {
	fields := validFields()
	fields["domain_userid"] = nil
	_, rej := New().Transform(rawWith(fields))
	require.NotNil(t, rej)
	assert.Equal(t, event.ReasonMissingField, rej.Reason)

	fields = validFields()
	fields["page_urlpath"] = "  "
	_, rej = New().Transform(rawWith(fields))
	require.NotNil(t, rej)
	assert.Equal(t, event.ReasonMissingField, rej.Reason)
}

func TestTransformCoercionFailures(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
	}{
		{"unparseable timestamp", "derived_tstamp", "01/08/2023 noon"},
		{"timestamp wrong type", "derived_tstamp", json.Number("1690891845")},
		{"fractional session index", "domain_sessionidx", json.Number("3.5")},
		{"non-numeric session index", "domain_sessionidx", "three"},
		{"NaN height", "doc_height", "NaN"},
		{"non-numeric height", "dvce_screenwidth", "wide"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			fields[tt.field] = tt.value
			row, rej := New().Transform(rawWith(fields))
			assert.Nil(t, row)
			require.NotNil(t, rej)
			assert.Equal(t, event.ReasonTypeCoercion, rej.Reason)
			assert.Equal(t, tt.field, rej.Field)
			assert.Equal(t, testEventID, rej.EventID)
		})
	}
}

func TestTransformUnknownEnumsMapToSentinel(t *testing.T) {
	fields := validFields()
	fields["event_name"] = "page_view"
	fields["refr_medium"] = "carrier-pigeon"
	delete(fields, "refr_source")

	row, rej := New().Transform(rawWith(fields))
	require.Nil(t, rej)
	assert.Equal(t, "unknown", row.RefrMedium)
	assert.Equal(t, "unknown", row.RefrSource)

	// Unknown event names also map to the sentinel rather than rejecting.
	fields = validFields()
	fields["event_name"] = "mystery_event"
	row, rej = New().Transform(rawWith(fields))
	require.Nil(t, rej)
	assert.Equal(t, "unknown", row.EventName)
}

func TestTransformTimestampOutsideBatchDate(t *testing.T) {
	// The warehouse swap only rewrites the unit's own day, so a row
	// timestamped on another day must be rejected, not loaded.
	for _, tstamp := range []string{
		"2023-07-31 23:59:59",
		"2023-08-02 00:00:00",
		"2023-08-05 12:00:00",
	} {
		t.Run(tstamp, func(t *testing.T) {
			fields := validFields()
			fields["derived_tstamp"] = tstamp
			row, rej := New().Transform(rawWith(fields))
			assert.Nil(t, row)
			require.NotNil(t, rej)
			assert.Equal(t, event.ReasonInvalidFormat, rej.Reason)
			assert.Equal(t, "derived_tstamp", rej.Field)
			assert.Equal(t, testEventID, rej.EventID)
		})
	}

	// Both day boundaries: midnight belongs to the unit, the next midnight
	// does not.
	fields := validFields()
	fields["derived_tstamp"] = "2023-08-01 00:00:00"
	row, rej := New().Transform(rawWith(fields))
	require.Nil(t, rej)
	assert.Equal(t, time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC), row.DerivedTstamp)
}

func TestTransformBadEventIDRejected(t *testing.T) {
	fields := validFields()
	fields["event_id"] = "not-a-uuid"
	row, rej := New().Transform(rawWith(fields))
	assert.Nil(t, row)
	require.NotNil(t, rej)
	assert.Equal(t, event.ReasonInvalidFormat, rej.Reason)
	assert.Equal(t, "event_id", rej.Field)
}

func TestTransformUndecodableLine(t *testing.T) {
	row, rej := New().Transform(event.Raw{Unit: testUnit(), Fields: nil})
	assert.Nil(t, row)
	require.NotNil(t, rej)
	assert.Equal(t, event.ReasonInvalidFormat, rej.Reason)
}

func TestTransformSubmitFormPayload(t *testing.T) {
	fields := validFields()
	fields["event_name"] = "submit_form"
	fields["page_urlpath"] = "/subscribe"
	// Payload delivered as a JSON string rather than an embedded object.
	fields["unstruct_event_com_snowplowanalytics_snowplow_submit_form_1"] = `{
		"formId": "signup",
		"formClasses": ["footer"],
		"elements": [{"name": "email", "nodeName": "INPUT", "type": "email"}]
	}`

	// AfroLA counts email forms submitted on its subscribe page.
	row, rej := New().Transform(rawWith(fields))
	require.Nil(t, rej)
	require.NotNil(t, row.FormSubmitJSON)
	assert.True(t, row.NewsletterForm)

	// The same form elsewhere on the site is not a newsletter signup.
	fields["page_urlpath"] = "/event-directory/"
	row, rej = New().Transform(rawWith(fields))
	require.Nil(t, rej)
	assert.False(t, row.NewsletterForm)

	fields["unstruct_event_com_snowplowanalytics_snowplow_submit_form_1"] = "{not json"
	row, rej = New().Transform(rawWith(fields))
	assert.Nil(t, row)
	require.NotNil(t, rej)
	assert.Equal(t, event.ReasonTypeCoercion, rej.Reason)
}

func TestTransformNumericStrings(t *testing.T) {
	fields := validFields()
	fields["domain_sessionidx"] = "7"
	fields["doc_height"] = "4833.5"

	row, rej := New().Transform(rawWith(fields))
	require.Nil(t, rej)
	assert.Equal(t, int64(7), row.DomainSessionIdx)
	assert.Equal(t, 4833.5, row.DocHeight)
}
