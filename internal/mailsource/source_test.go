package mailsource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestBuildQuery(t *testing.T) {
	senders := []string{"venmo@venmo.com", "no.reply.alerts@chase.com"}
	after := civil.Date{Year: 2024, Month: 10, Day: 2}

	assert.Equal(t,
		"(from:venmo@venmo.com OR from:no.reply.alerts@chase.com) AND after:2024-10-02",
		BuildQuery(senders, &after))
	assert.Equal(t,
		"(from:venmo@venmo.com OR from:no.reply.alerts@chase.com)",
		BuildQuery(senders, nil))
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"Venmo <venmo@venmo.com>", "venmo@venmo.com"},
		{"\"Chase\" <no.reply.alerts@chase.com>", "no.reply.alerts@chase.com"},
		{"venmo@venmo.com", "venmo@venmo.com"},
		{"  venmo@venmo.com ", "venmo@venmo.com"},
		{"broken > <", "broken > <"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			assert.Equal(t, tt.want, SenderAddress(tt.from))
		})
	}
}

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestSelectBody(t *testing.T) {
	tests := []struct {
		name    string
		payload *gmail.MessagePart
		want    string
		ok      bool
	}{
		{
			name:    "single part",
			payload: &gmail.MessagePart{Body: &gmail.MessagePartBody{Data: "single"}},
			want:    "single",
			ok:      true,
		},
		{
			name: "html part wins over plain",
			payload: &gmail.MessagePart{Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "plain"}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: "html"}},
			}},
			want: "html",
			ok:   true,
		},
		{
			name: "multipart related takes first child",
			payload: &gmail.MessagePart{Parts: []*gmail.MessagePart{
				{MimeType: "multipart/related", Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: "nested"}},
					{MimeType: "image/png", Body: &gmail.MessagePartBody{Data: "img"}},
				}},
			}},
			want: "nested",
			ok:   true,
		},
		{
			name: "only plain text",
			payload: &gmail.MessagePart{Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "plain"}},
			}},
			ok: false,
		},
		{
			name:    "empty single part",
			payload: &gmail.MessagePart{Body: &gmail.MessagePartBody{}},
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectBody(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBody(t *testing.T) {
	got, err := decodeBody(enc("<p>hi?</p>"))
	require.NoError(t, err)
	assert.Equal(t, "<p>hi?</p>", got)

	got, err = decodeBody(base64.RawURLEncoding.EncodeToString([]byte("ab")))
	require.NoError(t, err)
	assert.Equal(t, "ab", got)

	_, err = decodeBody("!!!")
	assert.Error(t, err)
}

type fakeGmail struct {
	mu       sync.Mutex
	queries  []string
	messages map[string]*gmail.Message
	fail     bool
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.fail {
		http.Error(w, `{"error":{"code":503,"message":"backend error"}}`, http.StatusServiceUnavailable)
		return
	}

	const prefix = "/gmail/v1/users/me/messages"
	path := strings.TrimPrefix(r.URL.Path, prefix)
	w.Header().Set("Content-Type", "application/json")

	if path == "" {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.mu.Unlock()

		// Two pages: m1 then m2.
		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"messages":      []map[string]string{{"id": "m1"}},
				"nextPageToken": "page2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "m2"}},
		})
		return
	}

	msg, ok := f.messages[strings.TrimPrefix(path, "/")]
	if !ok {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(msg)
}

func newTestSource(t *testing.T, f *fakeGmail) *GmailSource {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	src, err := NewGmailSource(context.Background(), "me", nil, 0,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return src
}

func TestGmailSource_ListCandidatesPaginates(t *testing.T) {
	f := &fakeGmail{}
	src := newTestSource(t, f)

	ids, err := src.ListCandidates(context.Background(), "(from:venmo@venmo.com)")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids)
	assert.Equal(t, "(from:venmo@venmo.com)", f.queries[0])
}

func TestGmailSource_ListCandidatesFailure(t *testing.T) {
	src := newTestSource(t, &fakeGmail{fail: true})

	ids, err := src.ListCandidates(context.Background(), "(from:venmo@venmo.com)")
	assert.Nil(t, ids)
	assert.True(t, errors.Is(err, domain.ErrTransientSource))
}

func TestGmailSource_Fetch(t *testing.T) {
	f := &fakeGmail{messages: map[string]*gmail.Message{
		"m1": {
			Id:           "m1",
			InternalDate: 1727839800000,
			Payload: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Headers: []*gmail.MessagePartHeader{
					{Name: "Subject", Value: "You paid Alice $12.34"},
					{Name: "From", Value: "Venmo <venmo@venmo.com>"},
				},
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("plain")}},
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<p>paid</p>")}},
				},
			},
		},
		"nobody": {
			Id:           "nobody",
			InternalDate: 1727839800000,
			Payload: &gmail.MessagePart{
				Headers: []*gmail.MessagePartHeader{{Name: "From", Value: "Venmo <venmo@venmo.com>"}},
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("plain")}},
				},
			},
		},
	}}
	src := newTestSource(t, f)
	ctx := context.Background()

	msg, err := src.Fetch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "You paid Alice $12.34", msg.Subject)
	assert.Equal(t, "venmo@venmo.com", msg.SenderAddress)
	assert.Equal(t, "<p>paid</p>", msg.Body)
	assert.Equal(t, int64(1727839800000), msg.TimestampMillis)

	msg, err = src.Fetch(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoBody)
	assert.ErrorIs(t, err, domain.ErrExtractionMismatch)
	require.NotNil(t, msg)
	assert.Equal(t, int64(1727839800000), msg.TimestampMillis)

	_, err = src.Fetch(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTransientSource)
}
