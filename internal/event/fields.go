package event

// Snowplow canonical fields carried through the pipeline. Documentation for
// each lives at https://docs.snowplow.io/docs/understanding-your-pipeline/canonical-event/.
const (
	// Browser viewport height/width in pixels.
	FieldBrViewHeight = "br_viewheight"
	FieldBrViewWidth  = "br_viewwidth"

	// Timestamp making allowance for inaccurate device clock.
	FieldDerivedTstamp = "derived_tstamp"

	// The page's height in pixels.
	FieldDocHeight = "doc_height"

	// Number of the current user session. Dependent on domain_userid.
	FieldDomainSessionIdx = "domain_sessionidx"

	// User ID set by Snowplow using a 1st-party cookie. Primary identity key.
	FieldDomainUserID = "domain_userid"

	// Screen height/width in pixels.
	FieldDvceScreenHeight = "dvce_screenheight"
	FieldDvceScreenWidth  = "dvce_screenwidth"

	// Event UUID. Part of the (site_name, event_id) composite key in the
	// warehouse table.
	FieldEventID = "event_id"

	// One of page_view, page_ping, focus_form, change_form, submit_form.
	FieldEventName = "event_name"

	// Referrer URL of the page.
	FieldPageReferrer = "page_referrer"

	// Components of the page URL.
	FieldPageURLFragment = "page_urlfragment"
	FieldPageURLPath     = "page_urlpath"
	FieldPageURLQuery    = "page_urlquery"

	// Maximum page y-offset seen in the last ping period. Only present when
	// event_name is page_ping.
	FieldPpYOffsetMax = "pp_yoffset_max"

	// Referrer classification from the referrer-parser enrichment: one of
	// social, search, internal, unknown, email.
	FieldRefrMedium = "refr_medium"

	// Referrer name when recognised, e.g. "Google".
	FieldRefrSource = "refr_source"

	// Components of the referrer URL.
	FieldRefrURLHost     = "refr_urlhost"
	FieldRefrURLFragment = "refr_urlfragment"
	FieldRefrURLPath     = "refr_urlpath"
	FieldRefrURLQuery    = "refr_urlquery"

	// Self-describing submit_form payload. Only present when event_name is
	// submit_form.
	FieldFormSubmit = "unstruct_event_com_snowplowanalytics_snowplow_submit_form_1"

	// Raw useragent string.
	FieldUserAgent = "useragent"

	// Added by the transformer, not present in raw Snowplow data.
	FieldSiteName = "site_name"
)

// RequiredFields are the raw fields that must be present and non-null for a
// record to be loadable.
var RequiredFields = []string{
	FieldDerivedTstamp,
	FieldDocHeight,
	FieldDomainSessionIdx,
	FieldDomainUserID,
	FieldDvceScreenHeight,
	FieldDvceScreenWidth,
	FieldEventID,
	FieldEventName,
	FieldPageURLPath,
}

// Known enum values for categorical fields. Anything else maps to
// ValueUnknown rather than rejecting the record, since these fields are
// never used as join keys.
const ValueUnknown = "unknown"

var KnownEventNames = map[string]bool{
	"page_view":   true,
	"page_ping":   true,
	"focus_form":  true,
	"change_form": true,
	"submit_form": true,
}

var KnownRefrMediums = map[string]bool{
	"social":   true,
	"search":   true,
	"internal": true,
	"unknown":  true,
	"email":    true,
}

const EventNameSubmitForm = "submit_form"
