// Package app wires the configured integrations into the rebuild pipeline
// for the server, the worker and islandctl.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/config"
	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/internal/queue"
	"github.com/bobmatnyc/the-island-sub004/internal/storage"
	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/ai"
	oai "github.com/bobmatnyc/the-island-sub004/pkg/ai/ollama"
	gai "github.com/bobmatnyc/the-island-sub004/pkg/ai/openai"
	"github.com/bobmatnyc/the-island-sub004/pkg/classify"
	"github.com/bobmatnyc/the-island-sub004/pkg/leaselock"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger/console"
	"github.com/bobmatnyc/the-island-sub004/pkg/store/file"
	pgstore "github.com/bobmatnyc/the-island-sub004/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
)

// InitLogger installs the console logger.
func InitLogger(cfg config.Config, prefix string) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		JSON:   cfg.LogJSON,
		Prefix: prefix,
	}))
}

// App holds the shared clients. Optional clients are nil when their
// section of the config is empty.
type App struct {
	Config    config.Config
	Store     *file.FileStore
	Rebuilder *pipeline.Rebuilder
	Backup    *storage.S3Backup

	Classifier classify.Classifier
	AI         ai.Client

	DB      *pgxpool.Pool
	AMQP    *amqp091.Connection
	Channel *amqp091.Channel

	closers []func()
}

// Open connects every configured integration. Without any of them the App
// rebuilds into the local artifact directory only.
func Open(ctx context.Context, cfg config.Config) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Classifier, a.AI, err = NewClassifier(cfg.AI)
	if err != nil {
		return nil, err
	}

	storeOpts := []file.FileStoreOption{file.WithRetain(cfg.Retain)}
	if cfg.S3.Enabled() {
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		a.Backup = storage.NewS3Backup(client, cfg.S3.Bucket, cfg.S3.Prefix)
		storeOpts = append(storeOpts, file.WithBackup(a.Backup))
	}
	a.Store, err = file.NewFileStore(cfg.ArtifactDir, storeOpts...)
	if err != nil {
		return nil, err
	}

	var rebuildOpts []pipeline.RebuilderOption
	if cfg.DatabaseURL != "" {
		a.DB, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		a.closers = append(a.closers, a.DB.Close)
		rebuildOpts = append(rebuildOpts,
			pipeline.WithPublisher(pgstore.NewGraphDBPublisherWithConnection(a.DB)),
			pipeline.WithLease(leaselock.New(a.DB), leaselock.RebuildKey(cfg.ArtifactDir)),
		)
	}

	if cfg.RabbitMQ.Enabled() {
		a.AMQP, err = queue.Init(cfg.RabbitMQ.URL())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = a.AMQP.Close() })
		a.Channel, err = a.AMQP.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to open channel: %w", err)
		}
		a.closers = append(a.closers, func() { _ = a.Channel.Close() })
		if err := queue.SetupQueues(a.Channel, queue.WorkQueues); err != nil {
			return nil, err
		}
		rebuildOpts = append(rebuildOpts, pipeline.WithReviewSink(queue.NewReviewPublisher(a.Channel)))
	}

	a.Rebuilder = pipeline.NewRebuilder(a.Store, rebuildOpts...)
	return a, nil
}

// Close releases the clients in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) Inputs() pipeline.Inputs {
	return pipeline.Inputs{
		CorpusPath:   a.Config.CorpusPath,
		EventsPath:   a.Config.EventsPath,
		CurationPath: a.Config.CurationPath,
		RulesPath:    a.Config.RulesPath,
	}
}

func (a *App) Options(progress util.ProgressFunc) pipeline.Options {
	return pipeline.Options{
		Workers:              a.Config.GraphWorkers,
		TopK:                 a.Config.TopK,
		ProgressEvery:        a.Config.ProgressEvery,
		MinArtifactFrequency: a.Config.MinArtifactFrequency,
		SnapshotTime:         a.Config.SnapshotTime,
		Classifier:           a.Classifier,
		Progress:             progress,
	}
}

// LogAIMetrics reports and resets the token usage of the external
// classifier, if there is one.
func (a *App) LogAIMetrics() {
	if a.AI == nil {
		return
	}
	metrics := a.AI.GetMetrics()
	logger.Info(
		"AI Metrics",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", util.FormatDuration(time.Duration(metrics.DurationMs)*time.Millisecond),
	)
	a.AI.ResetMetrics()
}

// NewClassifier builds the tiered classifier. With an AI adapter configured
// the model answers first and the procedural tiers catch its abstentions.
func NewClassifier(cfg config.AIConfig) (classify.Classifier, ai.Client, error) {
	var client ai.Client
	switch cfg.Adapter {
	case "":
		return classify.Default(), nil, nil
	case "ollama":
		c, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			Model:                 cfg.Model,
			BaseURL:               cfg.URL,
			ApiKey:                cfg.Key,
			MaxConcurrentRequests: int64(cfg.MaxConcurrent),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create Ollama client: %w", err)
		}
		client = c
	case "openai":
		client = gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			Model:   cfg.Model,
			ChatURL: cfg.URL,
			ChatKey: cfg.Key,
		})
	default:
		return nil, nil, fmt.Errorf("unknown AI adapter %q", cfg.Adapter)
	}

	external := classify.NewExternal(client, classify.ExternalParams{
		RequestsPerSecond: cfg.RequestsPerSecond,
		MinConfidence:     cfg.MinConfidence,
	})
	return classify.NewTiered(external, classify.NewContextHeuristic(), classify.NewKeywords()), client, nil
}
