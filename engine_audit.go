package portal

import (
	"context"
	"time"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventSessionCreated        = "session_created"
	auditEventLogout                = "logout"
	auditEventDeviceAnomalyDetected = "device_anomaly_detected"
	auditEventRoleConfigChanged     = "role_config_changed"
	auditEventRoleConfigDenied      = "role_config_denied"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	reason string,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Reason:    reason,
		Metadata:  metadata,
	})
}

func (e *Engine) now() time.Time {
	if e.sessions != nil {
		return e.sessions.Now()
	}
	return time.Now()
}

// flowMetricInc adapts metricInc to the int-typed metric ids of internal flows.
func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}
