// Package mailsource lists and fetches notification emails from the mailbox.
package mailsource

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
)

// ErrNoBody is returned by Fetch when a message carries no decodable body.
// It wraps domain.ErrExtractionMismatch so the message is recorded and not retried.
var ErrNoBody = fmt.Errorf("no decodable body: %w", domain.ErrExtractionMismatch)

// Message is one fetched email.
type Message struct {
	ID              string
	Subject         string
	From            string
	SenderAddress   string
	Body            string // raw, usually HTML
	TimestampMillis int64
}

// Source is the mailbox a refresh reads from.
type Source interface {
	// ListCandidates returns the ids of messages matching query. Failures wrap
	// domain.ErrTransientSource.
	ListCandidates(ctx context.Context, query string) ([]string, error)

	// Fetch loads one message. Failures wrap domain.ErrTransientSource, except a
	// missing body, which returns the headers together with ErrNoBody.
	Fetch(ctx context.Context, messageID string) (*Message, error)
}

// BuildQuery builds the provider search for mail from senders newer than after.
// A nil after lists every message from the senders.
func BuildQuery(senders []string, after *civil.Date) string {
	clauses := make([]string, 0, len(senders))
	for _, s := range senders {
		clauses = append(clauses, "from:"+s)
	}
	query := "(" + strings.Join(clauses, " OR ") + ")"
	if after != nil {
		query += " AND after:" + after.String()
	}
	return query
}

// SenderAddress returns the address between angle brackets in a From header,
// or the trimmed header when it has no brackets.
func SenderAddress(from string) string {
	start := strings.Index(from, "<")
	end := strings.LastIndex(from, ">")
	if start < 0 || end <= start {
		return strings.TrimSpace(from)
	}
	return strings.TrimSpace(from[start+1 : end])
}
