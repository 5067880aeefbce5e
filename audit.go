package authflow

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/authflow/internal/audit"
)

// Audit event types emitted by the engine. Metadata never includes codes,
// passwords, or token material.
const (
	auditRegisterRequest      = "register.request"
	auditRegisterVerify       = "register.verify"
	auditPasswordSetup        = "password.setup"
	auditOTPResend            = "otp.resend"
	auditLoginSuccess         = "login.success"
	auditLoginFailure         = "login.failure"
	auditLogout               = "logout"
	auditRefreshSuccess       = "refresh.success"
	auditRefreshFailure       = "refresh.failure"
	auditPasswordResetRequest = "password_reset.request"
	auditPasswordResetSuccess = "password_reset.success"
	auditPasswordResetFailure = "password_reset.failure"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID int64, opErr error, meta map[string]string) {
	if e.audit == nil {
		return
	}

	event := internalaudit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Metadata:  meta,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	e.audit.Emit(ctx, event)
}
