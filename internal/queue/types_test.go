package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/mailledger/internal/domain"
)

func TestEnvelope_TimestampIsAString(t *testing.T) {
	env := &MessageEnvelope{
		MessageID:        "m1",
		MessageSender:    "venmo@venmo.com",
		MessageSubject:   "You paid Alice $12.34",
		MessageTimestamp: 1727839800000,
		MessageBody:      "body",
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(data), `"message_timestamp":"1727839800000"`) {
		t.Errorf("Expected quoted timestamp, got %s", data)
	}

	back, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if *back != *env {
		t.Errorf("Round trip mismatch: %+v", back)
	}
}

func TestDecodeEnvelope_WatcherPayload(t *testing.T) {
	raw := `{"message_id": "18f2", "message_sender": "venmo@venmo.com",
"message_subject": "Bob paid you $5.00", "message_timestamp": "1727839800000",
"message_body": "Bob paid you"}`

	env, err := DecodeEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.MessageTimestamp != 1727839800000 || env.MessageSubject != "Bob paid you $5.00" {
		t.Errorf("Unexpected envelope %+v", env)
	}
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing id", `{"message_sender":"venmo@venmo.com","message_timestamp":"1"}`},
		{"numeric timestamp", `{"message_id":"m1","message_timestamp":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.raw))
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestPushRequest_Envelope(t *testing.T) {
	env := &MessageEnvelope{MessageID: "m1", MessageTimestamp: 42}
	data, _ := env.Encode()

	body, _ := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"data":      data, // encoding/json base64-encodes []byte
			"messageId": "pubsub-1",
		},
		"subscription": "projects/p/subscriptions/s",
	})

	var req PushRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	got, err := req.Envelope()
	if err != nil {
		t.Fatalf("Envelope failed: %v", err)
	}
	if got.MessageID != "m1" || got.MessageTimestamp != 42 {
		t.Errorf("Unexpected envelope %+v", got)
	}

	var empty PushRequest
	if _, err := empty.Envelope(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty push, got %v", err)
	}
}
