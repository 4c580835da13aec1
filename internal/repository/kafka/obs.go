package kafka

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

var (
	_ propagation.TextMapCarrier = headerCarrier(nil)
	_ propagation.TextMapCarrier = (*messageCarrier)(nil)
)

// headerCarrier collects injected trace context before it becomes message
// headers.
type headerCarrier map[string]string

func (h headerCarrier) Get(k string) string { return h[k] }
func (h headerCarrier) Set(k, v string)     { h[k] = v }

func (h headerCarrier) Keys() []string {
	ks := make([]string, 0, len(h))
	for k := range h {
		ks = append(ks, k)
	}
	return ks
}

func (h headerCarrier) headers() []kafka.Header {
	hs := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(v)})
	}
	return hs
}

// messageCarrier reads trace context straight off a consumed message. Set
// replaces an existing header so re-injection does not duplicate keys.
type messageCarrier struct{ m *kafka.Message }

func (c *messageCarrier) Get(k string) string {
	for _, h := range c.m.Headers {
		if h.Key == k {
			return string(h.Value)
		}
	}
	return ""
}

func (c *messageCarrier) Set(k, v string) {
	for i, h := range c.m.Headers {
		if h.Key == k {
			c.m.Headers[i].Value = []byte(v)
			return
		}
	}
	c.m.Headers = append(c.m.Headers, kafka.Header{Key: k, Value: []byte(v)})
}

func (c *messageCarrier) Keys() []string {
	ks := make([]string, 0, len(c.m.Headers))
	for _, h := range c.m.Headers {
		ks = append(ks, h.Key)
	}
	return ks
}
