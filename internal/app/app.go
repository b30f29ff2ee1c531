// Package app opens the backends selected in the configuration and hands them
// to the binaries. Clients are opened lazily, shared between components and
// released together by Close.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/dvloznov/mailledger/internal/archive"
	"github.com/dvloznov/mailledger/internal/config"
	"github.com/dvloznov/mailledger/internal/domain"
	"github.com/dvloznov/mailledger/internal/extract"
	infraBQ "github.com/dvloznov/mailledger/internal/infra/bigquery"
	infraFS "github.com/dvloznov/mailledger/internal/infra/firestore"
	"github.com/dvloznov/mailledger/internal/infra/redisstore"
	"github.com/dvloznov/mailledger/internal/infra/sqlstore"
	"github.com/dvloznov/mailledger/internal/mailsource"
	"github.com/dvloznov/mailledger/internal/pipeline"
	"github.com/dvloznov/mailledger/internal/queue"
	"github.com/dvloznov/mailledger/internal/queue/inmemory"
	"github.com/dvloznov/mailledger/internal/queue/kafka"
	"github.com/dvloznov/mailledger/internal/queue/pubsub"
	"github.com/dvloznov/mailledger/internal/secrets"
	"github.com/dvloznov/mailledger/internal/watermark"
	wminmemory "github.com/dvloznov/mailledger/internal/watermark/inmemory"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// memoryQueueSize is the buffer of the in-process queue.
const memoryQueueSize = 100

// App owns the clients opened for one process.
type App struct {
	Config *config.Config
	log    zerolog.Logger

	sql       *sqlstore.Store
	fsClient  *firestore.Client
	redis     *redis.Client
	bq        *infraBQ.TransactionStore
	memQueue  *inmemory.Queue
	memWM     *wminmemory.Store
	archiver  archive.Archiver
	archiveOK bool

	closers []func() error
}

// New returns an App for cfg. Nothing is opened until first use.
func New(cfg *config.Config, log zerolog.Logger) *App {
	return &App{Config: cfg, log: log}
}

// Close releases every client the App opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// SQLStore opens the Postgres store named by DATABASE_URL.
func (a *App) SQLStore(ctx context.Context) (*sqlstore.Store, error) {
	if a.sql != nil {
		return a.sql, nil
	}
	if err := a.Config.Require("DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("SQLStore: %w", err)
	}
	store, err := sqlstore.New(ctx, a.Config.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("SQLStore: %w", err)
	}
	a.sql = store
	a.onClose(store.Close)
	return store, nil
}

// UseSQLStore makes the App use store instead of opening its own. The App does not close it.
func (a *App) UseSQLStore(store *sqlstore.Store) {
	a.sql = store
}

// FirestoreClient opens the Firestore client for GCP_PROJECT_ID.
func (a *App) FirestoreClient(ctx context.Context) (*firestore.Client, error) {
	if a.fsClient != nil {
		return a.fsClient, nil
	}
	if err := a.Config.Require("GCP_PROJECT_ID"); err != nil {
		return nil, fmt.Errorf("FirestoreClient: %w", err)
	}
	client, err := infraFS.NewClient(ctx, a.Config.GCP.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("FirestoreClient: %w", err)
	}
	a.fsClient = client
	a.onClose(client.Close)
	return client, nil
}

// RedisClient connects to REDIS_ADDR and pings it.
func (a *App) RedisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	if err := a.Config.Require("REDIS_ADDR"); err != nil {
		return nil, fmt.Errorf("RedisClient: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("RedisClient: ping %s: %w", a.Config.Redis.Addr, err)
	}
	a.redis = rdb
	a.onClose(rdb.Close)
	return rdb, nil
}

// Watermark returns the processed-message store selected by watermark.backend.
func (a *App) Watermark(ctx context.Context) (watermark.Store, error) {
	switch a.Config.Watermark.Backend {
	case config.BackendMemory:
		if a.memWM == nil {
			a.memWM = wminmemory.NewStore()
		}
		return a.memWM, nil
	case config.BackendFirestore:
		client, err := a.FirestoreClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("Watermark: %w", err)
		}
		return infraFS.NewWatermarkStore(client, a.Config.GCP.MessageProcessingCollection), nil
	case config.BackendRedis:
		rdb, err := a.RedisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("Watermark: %w", err)
		}
		return redisstore.NewWatermarkStore(rdb), nil
	case config.BackendSQL:
		store, err := a.SQLStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("Watermark: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("Watermark: unknown backend %q: %w", a.Config.Watermark.Backend, domain.ErrInvalidArgument)
}

// Sink returns a sink writing to every configured sink backend.
func (a *App) Sink(ctx context.Context) (pipeline.MultiSink, error) {
	var sinks pipeline.MultiSink
	for _, name := range a.Config.Sinks {
		switch name {
		case config.BackendSQL:
			store, err := a.SQLStore(ctx)
			if err != nil {
				return nil, fmt.Errorf("Sink: %w", err)
			}
			sinks = append(sinks, store)
		case config.BackendFirestore:
			client, err := a.FirestoreClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("Sink: %w", err)
			}
			sinks = append(sinks, infraFS.NewTransactionSink(client, a.Config.GCP.TransactionsCollection))
		case config.BackendBigQuery:
			store, err := a.BigQueryStore(ctx)
			if err != nil {
				return nil, fmt.Errorf("Sink: %w", err)
			}
			sinks = append(sinks, store)
		default:
			return nil, fmt.Errorf("Sink: unknown sink %q: %w", name, domain.ErrInvalidArgument)
		}
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("Sink: no sinks configured: %w", domain.ErrConfigurationMissing)
	}
	return sinks, nil
}

// BigQueryStore opens the BigQuery transaction table in BIGQUERY_DATASET.
func (a *App) BigQueryStore(ctx context.Context) (*infraBQ.TransactionStore, error) {
	if a.bq != nil {
		return a.bq, nil
	}
	if err := a.Config.Require("GCP_PROJECT_ID", "BIGQUERY_DATASET"); err != nil {
		return nil, fmt.Errorf("BigQueryStore: %w", err)
	}
	store, err := infraBQ.NewTransactionStore(ctx, a.Config.GCP.ProjectID, a.Config.GCP.BigQueryDataset)
	if err != nil {
		return nil, fmt.Errorf("BigQueryStore: %w", err)
	}
	a.bq = store
	a.onClose(store.Close)
	return store, nil
}

// Rules returns the merchant rule store. Rules live in SQL; without
// DATABASE_URL no rules are applied.
func (a *App) Rules(ctx context.Context) (pipeline.RuleLister, error) {
	if a.sql == nil && a.Config.Postgres.DSN == "" {
		a.log.Warn().Msg("DATABASE_URL not set, merchant rules are disabled")
		return noRules{}, nil
	}
	store, err := a.SQLStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("Rules: %w", err)
	}
	return store, nil
}

type noRules struct{}

func (noRules) ListRules(context.Context) ([]domain.MerchantRule, error) { return nil, nil }

// Publisher returns the queue publisher selected by queue.backend.
func (a *App) Publisher(ctx context.Context) (queue.Publisher, error) {
	switch a.Config.Queue.Backend {
	case config.BackendMemory:
		return a.memoryQueue(), nil
	case config.BackendPubSub:
		if err := a.Config.Require("GCP_PROJECT_ID", "PUBSUB_TOPIC_ID"); err != nil {
			return nil, fmt.Errorf("Publisher: %w", err)
		}
		p, err := pubsub.NewPublisher(ctx, a.Config.GCP.ProjectID, a.Config.GCP.PubSubTopicID)
		if err != nil {
			return nil, fmt.Errorf("Publisher: %w", err)
		}
		a.onClose(p.Close)
		return p, nil
	case config.BackendKafka:
		if err := a.Config.Require("KAFKA_BROKERS", "KAFKA_TOPIC"); err != nil {
			return nil, fmt.Errorf("Publisher: %w", err)
		}
		p := kafka.NewPublisher(a.Config.Kafka.Brokers, a.Config.Kafka.Topic)
		a.onClose(p.Close)
		return p, nil
	}
	return nil, fmt.Errorf("Publisher: unknown backend %q: %w", a.Config.Queue.Backend, domain.ErrInvalidArgument)
}

// Consumer returns the queue consumer selected by queue.backend. The memory
// backend shares one queue with Publisher, so both ends must live in this process.
// The caller stops the consumer; Close only releases the underlying clients.
func (a *App) Consumer(ctx context.Context) (queue.Consumer, error) {
	switch a.Config.Queue.Backend {
	case config.BackendMemory:
		return a.memoryQueue(), nil
	case config.BackendPubSub:
		if err := a.Config.Require("GCP_PROJECT_ID", "PUBSUB_SUBSCRIPTION_ID"); err != nil {
			return nil, fmt.Errorf("Consumer: %w", err)
		}
		c, err := pubsub.NewConsumer(ctx, a.Config.GCP.ProjectID, a.Config.GCP.PubSubSubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("Consumer: %w", err)
		}
		return c, nil
	case config.BackendKafka:
		if err := a.Config.Require("KAFKA_BROKERS", "KAFKA_TOPIC"); err != nil {
			return nil, fmt.Errorf("Consumer: %w", err)
		}
		return kafka.NewConsumer(a.Config.Kafka.Brokers, a.Config.Kafka.Topic, a.Config.Kafka.GroupID), nil
	}
	return nil, fmt.Errorf("Consumer: unknown backend %q: %w", a.Config.Queue.Backend, domain.ErrInvalidArgument)
}

func (a *App) memoryQueue() *inmemory.Queue {
	if a.memQueue == nil {
		a.memQueue = inmemory.NewQueue(memoryQueueSize)
		a.onClose(a.memQueue.Close)
	}
	return a.memQueue
}

// TokenStore returns where the mailbox OAuth token is kept: OAUTH_TOKEN_FILE
// when set, otherwise the Secret Manager secret OAUTH_TOKEN_SECRET_ID.
func (a *App) TokenStore(ctx context.Context) (secrets.Store, error) {
	if a.Config.Gmail.TokenFile != "" {
		return secrets.NewFileStore(a.Config.Gmail.TokenFile), nil
	}
	if err := a.Config.Require("GCP_PROJECT_ID", "OAUTH_TOKEN_SECRET_ID"); err != nil {
		return nil, fmt.Errorf("TokenStore: %w", err)
	}
	store, err := secrets.NewSecretManagerStore(ctx, a.Config.GCP.ProjectID, a.Config.GCP.OAuthTokenSecretID)
	if err != nil {
		return nil, fmt.Errorf("TokenStore: %w", err)
	}
	a.onClose(store.Close)
	return store, nil
}

// MailSource opens the Gmail mailbox with the stored OAuth token.
func (a *App) MailSource(ctx context.Context) (mailsource.Source, error) {
	store, err := a.TokenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("MailSource: %w", err)
	}
	ts, err := secrets.TokenSource(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("MailSource: %w", err)
	}
	src, err := mailsource.NewGmailSource(ctx, a.Config.Gmail.UserID, ts, a.Config.Gmail.FetchRPS)
	if err != nil {
		return nil, fmt.Errorf("MailSource: %w", err)
	}
	return src, nil
}

// Archiver returns the mismatch archive, or nil when ARCHIVE_BUCKET is unset.
func (a *App) Archiver(ctx context.Context) (archive.Archiver, error) {
	if a.archiveOK {
		return a.archiver, nil
	}
	if a.Config.GCP.ArchiveBucket == "" {
		a.archiveOK = true
		return nil, nil
	}
	arch, err := archive.NewGCSArchiver(ctx, a.Config.GCP.ArchiveBucket)
	if err != nil {
		return nil, fmt.Errorf("Archiver: %w", err)
	}
	a.onClose(arch.Close)
	a.archiver, a.archiveOK = arch, true
	return arch, nil
}

// Engine builds the extraction engine for the configured senders.
func (a *App) Engine() (*extract.Engine, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, fmt.Errorf("Engine: %w", err)
	}
	return extract.New(extract.Senders{
		Venmo:      a.Config.Senders.Venmo,
		Amex:       a.Config.Senders.Amex,
		Chase:      a.Config.Senders.Chase,
		CapitalOne: a.Config.Senders.CapitalOne,
		WellsFargo: a.Config.Senders.WellsFargo,
	}, extract.Options{Employer: a.Config.Employer, Location: loc}), nil
}

// Runner assembles the synchronous refresh runner. It needs SQL for rules
// and the last refresh time.
func (a *App) Runner(ctx context.Context) (*pipeline.Runner, error) {
	store, err := a.SQLStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("Runner: %w", err)
	}
	deps := pipeline.RunnerDeps{Rules: store, Refresh: store}

	if deps.Source, err = a.MailSource(ctx); err != nil {
		return nil, fmt.Errorf("Runner: %w", err)
	}
	if deps.Watermark, err = a.Watermark(ctx); err != nil {
		return nil, fmt.Errorf("Runner: %w", err)
	}
	if deps.Extractor, err = a.Engine(); err != nil {
		return nil, fmt.Errorf("Runner: %w", err)
	}
	if deps.Sink, err = a.Sink(ctx); err != nil {
		return nil, fmt.Errorf("Runner: %w", err)
	}
	if deps.Archiver, err = a.Archiver(ctx); err != nil {
		return nil, fmt.Errorf("Runner: %w", err)
	}
	return pipeline.NewRunner(deps, a.Config.Name, a.Config.SenderList()), nil
}

// Writer assembles the queue-side transaction writer.
func (a *App) Writer(ctx context.Context) (*pipeline.Writer, error) {
	engine, err := a.Engine()
	if err != nil {
		return nil, fmt.Errorf("Writer: %w", err)
	}
	ruleLister, err := a.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("Writer: %w", err)
	}
	sink, err := a.Sink(ctx)
	if err != nil {
		return nil, fmt.Errorf("Writer: %w", err)
	}
	arch, err := a.Archiver(ctx)
	if err != nil {
		return nil, fmt.Errorf("Writer: %w", err)
	}
	return pipeline.NewWriter(engine, ruleLister, sink, arch), nil
}

// Watcher assembles the mailbox watcher that feeds the queue.
func (a *App) Watcher(ctx context.Context) (*pipeline.Watcher, error) {
	src, err := a.MailSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("Watcher: %w", err)
	}
	wm, err := a.Watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("Watcher: %w", err)
	}
	pub, err := a.Publisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("Watcher: %w", err)
	}
	return pipeline.NewWatcher(src, wm, pub, a.Config.SenderList()), nil
}
