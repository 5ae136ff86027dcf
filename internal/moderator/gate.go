package moderator

import (
	"context"
	"time"

	"github.com/livecast/backend/internal/metrics"
	"github.com/livecast/backend/internal/observability"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Verdict outcomes, also used as metric labels.
const (
	OutcomeAppropriate   = "appropriate"
	OutcomeInappropriate = "inappropriate"
	OutcomeFailOpen      = "fail_open"
)

// Verdict is the gate decision. FailOpen marks an allowed message whose
// classification failed.
type Verdict struct {
	Appropriate bool
	Reason      string
	FailOpen    bool
}

// Outcome returns the verdict's metric label.
func (v Verdict) Outcome() string {
	switch {
	case v.FailOpen:
		return OutcomeFailOpen
	case v.Appropriate:
		return OutcomeAppropriate
	default:
		return OutcomeInappropriate
	}
}

// Gate classifies chat text once per message. Classifier failures allow the
// message so chat stays available when the classifier is down.
type Gate struct {
	classifier Classifier
	timeout    time.Duration
}

func NewGate(classifier Classifier, timeout time.Duration) *Gate {
	return &Gate{classifier: classifier, timeout: timeout}
}

// Moderate never returns an error; failures surface as FailOpen verdicts.
func (g *Gate) Moderate(ctx context.Context, content string) Verdict {
	ctx, span := observability.StartSpan(ctx, "moderator.Moderate",
		attribute.Int("chat.content_length", len(content)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	c, err := g.classifier.Classify(ctx, content)
	metrics.ModerationLatency.Observe(time.Since(start).Seconds())

	var v Verdict
	if err != nil {
		observability.RecordError(span, err)
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("moderation fail-open: classifier unavailable, message allowed")
		v = Verdict{Appropriate: true, FailOpen: true}
	} else {
		v = Verdict{Appropriate: c.Appropriate, Reason: c.Reason}
	}

	span.SetAttributes(attribute.String("moderation.outcome", v.Outcome()))
	metrics.ModerationVerdicts.WithLabelValues(v.Outcome()).Inc()
	return v
}
