package testing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func metricAttrs(key, value string) metric.AddOption {
	return metric.WithAttributes(attribute.String(key, value))
}
