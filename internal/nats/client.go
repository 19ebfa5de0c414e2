package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/saviobatista/ais-receiver/internal/types"
)

const (
	StreamName          = "AIS"
	SubjectAISRaw       = "ais.raw"
	SubjectAISDecoded   = "ais.decoded"
	defaultStreamMaxAge = 24 * time.Hour
	publishTimeout      = 5 * time.Second
)

// Client publishes raw datagrams and decoded messages to JetStream
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("ais-receiver"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAISRaw, SubjectAISDecoded},
		Storage:  nats.FileStorage,
		MaxAge:   defaultStreamMaxAge,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

func (c *Client) publish(ctx context.Context, subject string, v interface{}, opts ...nats.PubOpt) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err := c.js.Publish(subject, data, append(opts, nats.Context(ctx))...); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishRaw publishes a datagram as received. The message id lets the
// stream drop a re-delivered datagram within its duplicate window.
func (c *Client) PublishRaw(ctx context.Context, dg types.RawDatagram) error {
	return c.publish(ctx, SubjectAISRaw, dg, nats.MsgId(rawMsgID(dg)))
}

// PublishDecoded publishes a decoded message
func (c *Client) PublishDecoded(ctx context.Context, msg types.Message) error {
	return c.publish(ctx, SubjectAISDecoded, msg)
}

func rawMsgID(dg types.RawDatagram) string {
	return fmt.Sprintf("%d/%s:%d/%x", dg.ReceiptTime.UnixNano(), dg.SourceAddress, dg.SourcePort, len(dg.Data))
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
