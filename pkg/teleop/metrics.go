package teleop

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/gwillem/roverpanel/pkg/teleop"

type metrics struct {
	emitted    metric.Int64Counter
	suppressed metric.Int64Counter
	gated      metric.Int64Counter
}

// newMetrics uses the global meter provider, a no-op unless one is installed.
func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)

	var (
		out metrics
		err error
	)
	out.emitted, err = m.Int64Counter(
		"teleop.commands.emitted",
		metric.WithDescription("Commands handed to the transport"),
	)
	if err != nil {
		return nil, fmt.Errorf("create emitted counter: %w", err)
	}
	out.suppressed, err = m.Int64Counter(
		"teleop.commands.suppressed",
		metric.WithDescription("Drive commands skipped because the intent did not change"),
	)
	if err != nil {
		return nil, fmt.Errorf("create suppressed counter: %w", err)
	}
	out.gated, err = m.Int64Counter(
		"teleop.commands.gated",
		metric.WithDescription("Commands dropped while the session was locked"),
	)
	if err != nil {
		return nil, fmt.Errorf("create gated counter: %w", err)
	}
	return &out, nil
}
