package internaldefs

import (
	"github.com/rvpalivoda/authsession"
)

// CounterDef binds a session counter to its exported name.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef binds a session histogram to its exported name.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authsession.MetricLoginSuccess, Name: "authsession_login_success_total", Help: "Successful logins."},
	{ID: authsession.MetricLoginFailure, Name: "authsession_login_failure_total", Help: "Failed logins."},
	{ID: authsession.MetricRegisterSuccess, Name: "authsession_register_success_total", Help: "Successful registrations."},
	{ID: authsession.MetricRegisterFailure, Name: "authsession_register_failure_total", Help: "Failed registrations."},
	{ID: authsession.MetricRecoverSuccess, Name: "authsession_recover_success_total", Help: "Successful account recoveries."},
	{ID: authsession.MetricRecoverFailure, Name: "authsession_recover_failure_total", Help: "Failed account recoveries."},
	{ID: authsession.MetricRenewSuccess, Name: "authsession_renew_success_total", Help: "Renewal round-trips that rotated the credential pair."},
	{ID: authsession.MetricRenewFailure, Name: "authsession_renew_failure_total", Help: "Renewal round-trips that failed."},
	{ID: authsession.MetricRenewShared, Name: "authsession_renew_shared_total", Help: "Callers that joined a renewal already in flight."},
	{ID: authsession.MetricGatewayRetry, Name: "authsession_gateway_retry_total", Help: "Requests re-sent after a renewal."},
	{ID: authsession.MetricTeardown, Name: "authsession_teardown_total", Help: "Forced transitions to anonymous."},
	{ID: authsession.MetricLogout, Name: "authsession_logout_total", Help: "Explicit logouts."},
	{ID: authsession.MetricLogoutNotifyFailure, Name: "authsession_logout_notify_failure_total", Help: "Logouts whose server notification failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricRequestLatency, Name: "authsession_request_latency_seconds", Help: "Authorized request latency, renewal and retry included."},
}

const (
	AuditDroppedName = "authsession_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramUpperBounds are the finite bucket limits in seconds. The last
// snapshot bucket is the +Inf overflow.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
