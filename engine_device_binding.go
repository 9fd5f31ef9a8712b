package portal

import (
	"context"

	"github.com/dppd-rp/portal/internal"
	"github.com/dppd-rp/portal/internal/flows"
	"github.com/dppd-rp/portal/session"
)

// detectDeviceBinding reports client changes since login. It never denies.
func (e *Engine) detectDeviceBinding(ctx context.Context, sess *session.Session) flows.DeviceBindingResult {
	if e == nil || sess == nil || !e.config.DeviceBinding.Enabled {
		return flows.DeviceBindingResult{}
	}
	cfg := e.config.DeviceBinding
	return flows.RunDetectDeviceBinding(ctx, flows.DeviceBindingSession{
		SessionID:     sess.ID,
		UserID:        sess.User.ID,
		IPHash:        sess.IPHash,
		UserAgentHash: sess.UserAgentHash,
	}, flows.DeviceBindingDeps{
		Config: flows.DeviceBindingConfig{
			Enabled:               cfg.Enabled,
			DetectIPChange:        cfg.DetectIPChange,
			DetectUserAgentChange: cfg.DetectUserAgentChange,
		},
		ClientIPFromContext:     clientIPFromContext,
		UserAgentFromContext:    userAgentFromContext,
		HashBindingValue:        internal.HashBindingValue,
		ShouldEmitDeviceAnomaly: e.shouldEmitDeviceAnomaly,
		MetricInc:               e.flowMetricInc,
		EmitAudit:               e.emitAudit,

		EventDeviceAnomalyDetected: auditEventDeviceAnomalyDetected,
		MetricDeviceIPMismatch:     int(MetricDeviceIPMismatch),
		MetricDeviceUAMismatch:     int(MetricDeviceUAMismatch),
	})
}

// bindingHashes captures the client fingerprint stored at login.
func (e *Engine) bindingHashes(ctx context.Context) (ipHash, uaHash string) {
	if !e.config.DeviceBinding.Enabled {
		return "", ""
	}
	return internal.HashBindingValue(clientIPFromContext(ctx)), internal.HashBindingValue(userAgentFromContext(ctx))
}

func (e *Engine) shouldEmitDeviceAnomaly(ctx context.Context, sessionID, kind string) bool {
	if e == nil || e.sessions == nil || sessionID == "" {
		return true
	}
	ok, err := e.sessions.ShouldEmitDeviceAnomaly(ctx, sessionID, kind, e.config.DeviceBinding.AnomalyWindow)
	if err != nil {
		e.logger.Warn("device anomaly throttle unavailable", "error", err)
		return false
	}
	return ok
}
