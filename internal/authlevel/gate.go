package authlevel

import (
	"context"
	"fmt"
	"net/http"
)

// StatusInsufficientLevel is returned for callers that are signed in but not verified enough.
const StatusInsufficientLevel = http.StatusMethodNotAllowed

// DeniedError is an authorization failure carrying the tier that was missing.
type DeniedError struct {
	Required Level
	Current  Level
	Code     int
	Reason   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s (level %d, required %d)", e.Reason, e.Current, e.Required)
}

// Reason names the requirement of a tier.
func Reason(required Level) string {
	switch {
	case required <= Base:
		return "requires authentication"
	case required == Mail:
		return "requires email confirmation"
	case required == Phone:
		return "requires phone confirmation"
	default:
		return "requires document confirmation"
	}
}

// Check allows the action when current reaches required and otherwise returns a *DeniedError.
func Check(current, required Level) error {
	if current >= required {
		return nil
	}
	code := StatusInsufficientLevel
	if required <= Base {
		code = http.StatusUnauthorized
	}
	return &DeniedError{
		Required: required,
		Current:  current,
		Code:     code,
		Reason:   Reason(required),
	}
}

// Request identifies who asked for what, for the audit trail.
type Request struct {
	Session   string
	UserID    string
	RequestID string
	Resource  string
}

// AuditSink records denials. Implementations must not block.
type AuditSink interface {
	LogDenial(ctx context.Context, req Request, denial *DeniedError)
}

type noopSink struct{}

func (noopSink) LogDenial(context.Context, Request, *DeniedError) {}

// Gate wraps Check with denial auditing.
type Gate struct {
	sink AuditSink
}

// NewGate builds a gate reporting denials to sink. A nil sink discards them.
func NewGate(sink AuditSink) *Gate {
	if sink == nil {
		sink = noopSink{}
	}
	return &Gate{sink: sink}
}

// Require checks current against required and audits a denial. The sink never changes the outcome.
func (g *Gate) Require(ctx context.Context, req Request, current, required Level) error {
	err := Check(current, required)
	if denial, ok := err.(*DeniedError); ok {
		g.sink.LogDenial(ctx, req, denial)
	}
	return err
}
