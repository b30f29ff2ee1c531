package mailsource

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/logger"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSource reads messages through the Gmail API.
type GmailSource struct {
	svc     *gmail.Service
	userID  string
	limiter *rate.Limiter
}

// NewGmailSource creates a Gmail source for userID ("me" or the mailbox address).
// ts authorizes the calls; extra options are appended, which tests use to point
// the client at a local server. fetchRPS caps message fetches per second; zero
// or less means no limit.
func NewGmailSource(ctx context.Context, userID string, ts oauth2.TokenSource, fetchRPS float64, opts ...option.ClientOption) (*GmailSource, error) {
	var all []option.ClientOption
	if ts != nil {
		all = append(all, option.WithTokenSource(ts))
	}
	all = append(all, opts...)

	svc, err := gmail.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("NewGmailSource: create gmail service: %w", err)
	}
	return NewGmailSourceWithService(svc, userID, fetchRPS), nil
}

// NewGmailSourceWithService wraps an existing Gmail service.
func NewGmailSourceWithService(svc *gmail.Service, userID string, fetchRPS float64) *GmailSource {
	limit := rate.Inf
	if fetchRPS > 0 {
		limit = rate.Limit(fetchRPS)
	}
	return &GmailSource{
		svc:     svc,
		userID:  userID,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// ListCandidates implements Source. It follows every result page.
func (g *GmailSource) ListCandidates(ctx context.Context, query string) ([]string, error) {
	log := logger.FromContext(ctx)
	log.Info().Str("query", query).Msg("Beginning message retrieval")

	var ids []string
	err := g.svc.Users.Messages.List(g.userID).Q(query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list messages")
		return nil, fmt.Errorf("ListCandidates: %v: %w", err, domain.ErrTransientSource)
	}

	if len(ids) == 0 {
		log.Info().Msg("No messages found")
	} else {
		log.Info().Int("count", len(ids)).Msg("Found messages")
	}
	return ids, nil
}

// Fetch implements Source.
func (g *GmailSource) Fetch(ctx context.Context, messageID string) (*Message, error) {
	log := logger.FromContext(ctx).With().Str("message_id", messageID).Logger()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("Fetch: rate limit wait: %v: %w", err, domain.ErrTransientSource)
	}

	raw, err := g.svc.Users.Messages.Get(g.userID, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve message")
		return nil, fmt.Errorf("Fetch: get message %s: %v: %w", messageID, err, domain.ErrTransientSource)
	}

	msg := &Message{
		ID:              messageID,
		TimestampMillis: raw.InternalDate,
	}
	if raw.Payload == nil {
		return msg, ErrNoBody
	}
	for _, h := range raw.Payload.Headers {
		switch {
		case strings.EqualFold(h.Name, "Subject"):
			msg.Subject = h.Value
		case strings.EqualFold(h.Name, "From"):
			msg.From = h.Value
		}
	}
	msg.SenderAddress = SenderAddress(msg.From)

	data, ok := selectBody(raw.Payload)
	if !ok {
		log.Warn().Str("sender", msg.SenderAddress).Msg("Message has no usable body part")
		return msg, ErrNoBody
	}
	body, err := decodeBody(data)
	if err != nil {
		log.Warn().Err(err).Str("sender", msg.SenderAddress).Msg("Failed to decode message body")
		return msg, ErrNoBody
	}
	msg.Body = body

	log.Debug().Str("sender", msg.SenderAddress).Msg("Retrieved message")
	return msg, nil
}

// selectBody picks the encoded body data: the payload's own body for single part
// messages, else the first text/html part, or the first child of the first
// multipart/related part.
func selectBody(payload *gmail.MessagePart) (string, bool) {
	if len(payload.Parts) == 0 {
		if payload.Body == nil || payload.Body.Data == "" {
			return "", false
		}
		return payload.Body.Data, true
	}

	for _, part := range payload.Parts {
		switch part.MimeType {
		case "text/html":
			if part.Body == nil || part.Body.Data == "" {
				return "", false
			}
			return part.Body.Data, true
		case "multipart/related":
			if len(part.Parts) == 0 || part.Parts[0].Body == nil || part.Parts[0].Body.Data == "" {
				return "", false
			}
			return part.Parts[0].Body.Data, true
		}
	}
	return "", false
}

// decodeBody decodes URL-safe base64, padded or not.
func decodeBody(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", fmt.Errorf("decodeBody: %w", err)
		}
	}
	return string(b), nil
}

var _ Source = (*GmailSource)(nil)
