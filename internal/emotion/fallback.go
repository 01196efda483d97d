package emotion

import (
	"context"

	"go.uber.org/zap"
)

// Fallback tries a primary classifier and falls back to a secondary one when
// the primary fails.
type Fallback struct {
	primary   Classifier
	secondary Classifier
	logger    *zap.Logger
}

// NewFallback creates a Fallback. A nil logger disables logging.
func NewFallback(primary, secondary Classifier, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Classify implements Classifier.
func (f *Fallback) Classify(ctx context.Context, text string, conv Conversation) (Analysis, error) {
	a, err := f.primary.Classify(ctx, text, conv)
	if err == nil {
		return a, nil
	}
	if ctx.Err() != nil {
		return Analysis{}, ctx.Err()
	}
	f.logger.Warn("classifier failed, using fallback", zap.Error(err))
	return f.secondary.Classify(ctx, text, conv)
}

var _ Classifier = (*Fallback)(nil)
