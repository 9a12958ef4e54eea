package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func InjectTraceContext(ctx context.Context, headers []kafka.Header) []kafka.Header {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return headers
	}

	carrier := &kafkaHeaderCarrier{headers: headers}
	propagator.Inject(ctx, carrier)

	return carrier.headers
}

// kafkaHeaderCarrier is used through a pointer because Set appends.
type kafkaHeaderCarrier struct {
	headers []kafka.Header
}

// ExtractFromHeaderMap restores a trace context carried in decoded message
// headers.
func ExtractFromHeaderMap(ctx context.Context, headers map[string][]byte) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	for k, v := range headers {
		carrier[k] = string(v)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Set(key, value string) {
	for i, h := range c.headers {
		if h.Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{
		Key:   key,
		Value: []byte(value),
	})
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// TraceIDFromHeaders returns the upstream trace id carried in headers, or ""
// when there is none.
func TraceIDFromHeaders(ctx context.Context, headers map[string][]byte) string {
	sc := trace.SpanContextFromContext(ExtractFromHeaderMap(ctx, headers))
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
