package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"flagkit/pkg/event"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata keys set on published messages.
const (
	MetadataURL        = "url"
	MetadataHTTPVerb   = "http_verb"
	MetadataEventCount = "event_count"
)

// Publisher dispatches log events to a message broker topic instead of calling
// the collector directly. A downstream consumer forwards them.
type Publisher struct {
	publisher message.Publisher
	topic     string
}

// NewPublisher wraps a watermill publisher.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	return &Publisher{
		publisher: pub,
		topic:     topic,
	}
}

// Dispatch publishes the batch body as a single message.
func (p *Publisher) Dispatch(ctx context.Context, req event.LogEvent) (Response, error) {
	body, err := req.Body()
	if err != nil {
		return Response{}, err
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataURL, req.URL)
	msg.Metadata.Set(MetadataHTTPVerb, req.HTTPVerb)
	msg.Metadata.Set(MetadataEventCount, strconv.Itoa(req.Params.Len()))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return Response{}, fmt.Errorf("failed to publish to topic %s: %w", p.topic, err)
	}
	return Response{StatusCode: http.StatusAccepted}, nil
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.publisher.Close()
}

var _ Dispatcher = (*Publisher)(nil)
