package controller

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/gwillem/roverpanel/pkg/controller"

type metrics struct {
	handled  metric.Int64Counter
	rejected metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := otel.Meter(instrumentationName)

	var (
		out metrics
		err error
	)
	out.handled, err = m.Int64Counter(
		"controller.commands.handled",
		metric.WithDescription("Commands applied to the robot"),
	)
	if err != nil {
		return nil, fmt.Errorf("create handled counter: %w", err)
	}
	out.rejected, err = m.Int64Counter(
		"controller.commands.rejected",
		metric.WithDescription("Commands refused from locked sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}
	return &out, nil
}

func eventAttr(event string) metric.AddOption {
	return metric.WithAttributes(attribute.String("event", event))
}
