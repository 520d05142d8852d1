package messaging

import "github.com/segmentio/kafka-go"

// messageCarrier exposes kafka message headers as an otel TextMapCarrier so
// trace context survives the broker hop.
type messageCarrier struct {
	msg *kafka.Message
}

func (c messageCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces any existing header with the same key.
func (c messageCarrier) Set(key, value string) {
	kept := c.msg.Headers[:0]
	for _, h := range c.msg.Headers {
		if h.Key != key {
			kept = append(kept, h)
		}
	}
	c.msg.Headers = append(kept, kafka.Header{Key: key, Value: []byte(value)})
}

func (c messageCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
