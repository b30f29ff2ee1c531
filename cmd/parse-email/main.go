// Command parse-email runs the extraction engine on one message body, read from
// a local file or from the mismatch archive, and prints the result. It is used
// to replay archived mismatches after an extractor change.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/mailledger/internal/archive"
	"github.com/dvloznov/mailledger/internal/config"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/extract"
	"github.com/dvloznov/mailledger/internal/htmltext"
	"github.com/dvloznov/mailledger/internal/logger"
)

func main() {
	log := logger.New()

	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	file := flag.String("file", "", "Path to a message body")
	archiveURI := flag.String("archive-uri", "", "gs:// URI of an archived message body")
	sender := flag.String("sender", "", "Sender address (required)")
	subject := flag.String("subject", "", "Subject line")
	timestampMs := flag.Int64("timestamp-ms", 0, "Send time in epoch milliseconds (defaults to now)")
	html := flag.Bool("html", false, "Normalize the body from HTML first")
	flag.Parse()

	if *sender == "" {
		log.Fatal().Msg("Error: --sender is required")
	}
	if (*file == "") == (*archiveURI == "") {
		log.Fatal().Msg("Error: exactly one of --file or --archive-uri is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var body []byte
	if *file != "" {
		body, err = os.ReadFile(*file)
	} else {
		body, err = fetchArchived(ctx, *archiveURI)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read message body")
	}

	text := string(body)
	if *html {
		text = htmltext.Normalize(text)
	}
	if *timestampMs == 0 {
		*timestampMs = time.Now().UnixMilli()
	}

	engine := extract.New(extract.Senders{
		Venmo:      cfg.Senders.Venmo,
		Amex:       cfg.Senders.Amex,
		Chase:      cfg.Senders.Chase,
		CapitalOne: cfg.Senders.CapitalOne,
		WellsFargo: cfg.Senders.WellsFargo,
	}, extract.Options{Employer: cfg.Employer, Location: loc})

	tx, err := engine.Extract(ctx, extract.Input{
		MessageID:       "local",
		Subject:         *subject,
		Sender:          strings.TrimSpace(*sender),
		TimestampMillis: *timestampMs,
		Body:            text,
	}, time.Time{})
	switch {
	case errors.Is(err, domain.ErrExtractionMismatch):
		log.Fatal().Err(err).Msg("Message did not match its institution's format")
	case err != nil:
		log.Fatal().Err(err).Msg("Extraction failed")
	case tx == nil:
		fmt.Println("No transaction in this message.")
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(tx)
}

func fetchArchived(ctx context.Context, uri string) ([]byte, error) {
	bucket, _, err := archive.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	arch, err := archive.NewGCSArchiver(ctx, bucket)
	if err != nil {
		return nil, err
	}
	defer arch.Close()
	return arch.Fetch(ctx, uri)
}
