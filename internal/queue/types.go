// Package queue carries fetched messages from the mailbox watcher to the
// transaction writer.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/mailledger/internal/domain"
)

// MessageEnvelope is the queue payload for one fetched message.
type MessageEnvelope struct {
	// MessageID is the mailbox provider's message id.
	MessageID string `json:"message_id"`

	// MessageSender is the bare sender address.
	MessageSender string `json:"message_sender"`

	// MessageSubject is the Subject header.
	MessageSubject string `json:"message_subject"`

	// MessageTimestamp is the provider's send time in epoch milliseconds,
	// encoded as a decimal string.
	MessageTimestamp int64 `json:"message_timestamp,string"`

	// MessageBody is the normalized plain-text body.
	MessageBody string `json:"message_body"`
}

// Encode returns the JSON wire form of e.
func (e *MessageEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("Encode: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses the JSON wire form. An envelope without a message id is rejected.
func DecodeEnvelope(data []byte) (*MessageEnvelope, error) {
	var e MessageEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("DecodeEnvelope: %v: %w", err, domain.ErrInvalidArgument)
	}
	if e.MessageID == "" {
		return nil, fmt.Errorf("DecodeEnvelope: message_id is required: %w", domain.ErrInvalidArgument)
	}
	return &e, nil
}

// PushRequest is the body Pub/Sub posts to a push subscription endpoint.
type PushRequest struct {
	Message struct {
		// Data is base64 in the JSON body and decoded by encoding/json.
		Data        []byte            `json:"data"`
		MessageID   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes,omitempty"`
		PublishTime string            `json:"publishTime,omitempty"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Envelope decodes the envelope carried in the push message.
func (p *PushRequest) Envelope() (*MessageEnvelope, error) {
	if len(p.Message.Data) == 0 {
		return nil, fmt.Errorf("Envelope: push message %s has no data: %w", p.Message.MessageID, domain.ErrInvalidArgument)
	}
	return DecodeEnvelope(p.Message.Data)
}

// Publisher defines the interface for publishing envelopes to a queue.
type Publisher interface {
	// PublishMessage publishes one envelope and returns once the transport accepted it.
	PublishMessage(ctx context.Context, env *MessageEnvelope) error

	// Close flushes and releases resources.
	Close() error
}

// Consumer defines the interface for consuming envelopes from a queue.
type Consumer interface {
	// Start begins delivering envelopes to handler. It does not block.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight envelopes to complete.
	Stop(ctx context.Context) error
}

// Handler processes one envelope. A non-nil error asks the transport to redeliver.
type Handler func(ctx context.Context, env *MessageEnvelope) error
