package internaldefs

import (
	"strconv"

	portal "github.com/dppd-rp/portal"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   portal.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   portal.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "dppd_audit_dropped_total"

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: portal.MetricLoginSuccess, Name: "dppd_login_success_total", Help: "Successful logins."},
	{ID: portal.MetricLoginFailure, Name: "dppd_login_failure_total", Help: "Failed logins."},
	{ID: portal.MetricLoginRateLimited, Name: "dppd_login_rate_limited_total", Help: "Login attempts refused by the throttle."},
	{ID: portal.MetricSessionCreated, Name: "dppd_session_created_total", Help: "Created sessions."},
	{ID: portal.MetricSessionResolved, Name: "dppd_session_resolved_total", Help: "Cookies resolved to a live session."},
	{ID: portal.MetricSessionRefreshed, Name: "dppd_session_refreshed_total", Help: "Sessions whose expiry was extended on use."},
	{ID: portal.MetricSessionLookupFailed, Name: "dppd_session_lookup_failed_total", Help: "Session lookups that failed on the store."},
	{ID: portal.MetricLogout, Name: "dppd_logout_total", Help: "Logout operations."},
	{ID: portal.MetricDeviceIPMismatch, Name: "dppd_device_ip_mismatch_total", Help: "Requests whose client IP differs from the session's."},
	{ID: portal.MetricDeviceUAMismatch, Name: "dppd_device_ua_mismatch_total", Help: "Requests whose user agent differs from the session's."},
	{ID: portal.MetricAuthorizeAllowed, Name: "dppd_authorize_allowed_total", Help: "Permission checks that allowed access."},
	{ID: portal.MetricAuthorizeDenied, Name: "dppd_authorize_denied_total", Help: "Permission checks that denied access."},
	{ID: portal.MetricRoleConfigChanged, Name: "dppd_role_config_changed_total", Help: "Role mapping mutations."},
	{ID: portal.MetricRoleConfigRejected, Name: "dppd_role_config_rejected_total", Help: "Role mapping mutations refused for lack of privilege."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: portal.MetricAuthorizeLatency, Name: "dppd_authorize_latency_seconds", Help: "Permission check latency."},
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(portal.HistogramBounds) + 1

// UpperBounds returns the finite bucket bounds in seconds.
func UpperBounds() []float64 {
	out := make([]float64, len(portal.HistogramBounds))
	for i, b := range portal.HistogramBounds {
		out[i] = b.Seconds()
	}
	return out
}

// BoundLabels returns the le label of every bucket, ending with +Inf.
func BoundLabels() []string {
	out := make([]string, 0, BucketCount)
	for _, b := range UpperBounds() {
		out = append(out, strconv.FormatFloat(b, 'g', -1, 64))
	}
	return append(out, "+Inf")
}

// BoundSuffixes returns instrument-name-safe forms of BoundLabels.
func BoundSuffixes() []string {
	labels := BoundLabels()
	out := make([]string, len(labels))
	for i, l := range labels {
		if l == "+Inf" {
			out[i] = "inf"
			continue
		}
		b := []byte(l)
		for j := range b {
			switch b[j] {
			case '.', '-', '+':
				b[j] = '_'
			}
		}
		out[i] = string(b)
	}
	return out
}

// NormalizeBuckets pads or truncates raw to BucketCount entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
