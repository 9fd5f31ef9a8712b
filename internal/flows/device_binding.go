package flows

import (
	"context"
	"crypto/subtle"
)

// DeviceBindingSession is the part of a session the binding check reads.
type DeviceBindingSession struct {
	SessionID     string
	UserID        string
	IPHash        string
	UserAgentHash string
}

// DeviceBindingConfig selects which client attributes are compared.
type DeviceBindingConfig struct {
	Enabled               bool
	DetectIPChange        bool
	DetectUserAgentChange bool
}

// DeviceBindingDeps captures device-binding dependencies.
type DeviceBindingDeps struct {
	Config                  DeviceBindingConfig
	ClientIPFromContext     func(context.Context) string
	UserAgentFromContext    func(context.Context) string
	HashBindingValue        func(string) string
	ShouldEmitDeviceAnomaly func(context.Context, string, string) bool
	MetricInc               func(int)
	EmitAudit               func(ctx context.Context, event string, success bool, userID, sessionID, reason string, meta func() map[string]string)

	EventDeviceAnomalyDetected string
	MetricDeviceIPMismatch     int
	MetricDeviceUAMismatch     int
}

// DeviceBindingResult reports what differed from the values seen at login.
type DeviceBindingResult struct {
	IPMismatch        bool
	UserAgentMismatch bool
}

// RunDetectDeviceBinding compares the request's client IP and user agent
// with the hashes stored at login. Mismatches are reported through metrics
// and audit, at most once per anomaly window, and never reject the request:
// legitimate users change networks and browsers mid-session.
//
// A value missing on either side is not a mismatch.
func RunDetectDeviceBinding(ctx context.Context, sess DeviceBindingSession, deps DeviceBindingDeps) DeviceBindingResult {
	var res DeviceBindingResult
	if !deps.Config.Enabled {
		return res
	}

	if deps.Config.DetectIPChange {
		res.IPMismatch = hashMismatch(sess.IPHash, deps.HashBindingValue(deps.ClientIPFromContext(ctx)))
	}
	if deps.Config.DetectUserAgentChange {
		res.UserAgentMismatch = hashMismatch(sess.UserAgentHash, deps.HashBindingValue(deps.UserAgentFromContext(ctx)))
	}
	if !res.IPMismatch && !res.UserAgentMismatch {
		return res
	}

	ipEmit := res.IPMismatch && deps.ShouldEmitDeviceAnomaly(ctx, sess.SessionID, "ip")
	uaEmit := res.UserAgentMismatch && deps.ShouldEmitDeviceAnomaly(ctx, sess.SessionID, "ua")
	if ipEmit {
		deps.MetricInc(deps.MetricDeviceIPMismatch)
	}
	if uaEmit {
		deps.MetricInc(deps.MetricDeviceUAMismatch)
	}
	if ipEmit || uaEmit {
		deps.EmitAudit(ctx, deps.EventDeviceAnomalyDetected, true, sess.UserID, sess.SessionID, "", func() map[string]string {
			meta := map[string]string{}
			if ipEmit {
				meta["ip_mismatch"] = "1"
			}
			if uaEmit {
				meta["ua_mismatch"] = "1"
			}
			return meta
		})
	}
	return res
}

func hashMismatch(stored, current string) bool {
	if stored == "" || current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(current)) != 1
}
