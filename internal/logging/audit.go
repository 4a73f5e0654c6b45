package logging

import (
	"context"
	"log/slog"

	"github.com/studcloud/sso/internal/authlevel"
)

// DenialSink writes access denials to a structured logger.
type DenialSink struct {
	logger *slog.Logger
}

// NewDenialSink returns an audit sink backed by logger.
func NewDenialSink(logger *slog.Logger) *DenialSink {
	if logger == nil {
		logger = Discard()
	}
	return &DenialSink{logger: logger}
}

// LogDenial implements authlevel.AuditSink.
func (s *DenialSink) LogDenial(ctx context.Context, req authlevel.Request, denial *authlevel.DeniedError) {
	s.logger.LogAttrs(ctx, slog.LevelWarn, "access denied",
		slog.String("session", req.Session),
		slog.String("user_id", req.UserID),
		slog.String("request_id", req.RequestID),
		slog.String("resource", req.Resource),
		slog.Int("current_level", int(denial.Current)),
		slog.Int("required_level", int(denial.Required)),
		slog.String("reason", denial.Reason),
	)
}
