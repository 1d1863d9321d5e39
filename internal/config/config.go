// Package config collects the engine settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/internal/util"
	"github.com/bobmatnyc/the-island-sub004/pkg/graph"
	"github.com/bobmatnyc/the-island-sub004/pkg/mapping"
)

// Config is the settings shared by islandctl, the server and the worker.
// Empty optional sections (DatabaseURL, RabbitMQ.Host, S3.Bucket,
// AI.Adapter) switch the matching integration off.
type Config struct {
	Debug   bool
	LogJSON bool

	ArtifactDir    string
	CorpusPath     string
	EventsPath     string
	CurationPath   string
	RulesPath      string
	MigrationsPath string

	GraphWorkers         int
	TopK                 int
	ProgressEvery        int
	MinArtifactFrequency int
	Retain               int
	// SnapshotTime stamps derived mapping entries. Empty means the latest
	// mention date in the corpus.
	SnapshotTime string

	DatabaseURL string

	RabbitMQ RabbitMQConfig
	S3       S3Config
	AI       AIConfig

	AuthURL      string
	MasterAPIKey string
	Port         string
}

type RabbitMQConfig struct {
	User     string
	Password string
	Host     string
	Port     string
}

// URL is the amqp connection string.
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

func (c RabbitMQConfig) Enabled() bool { return c.Host != "" }

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

type AIConfig struct {
	// Adapter is "openai", "ollama" or empty for no external classifier.
	Adapter           string
	Model             string
	URL               string
	Key               string
	RequestsPerSecond float64
	MaxConcurrent     int
	MinConfidence     float64
}

// Load reads the environment (after .env, when present).
func Load() Config {
	util.LoadEnv()

	return Config{
		Debug:   util.GetEnvBool("DEBUG", false),
		LogJSON: strings.EqualFold(util.GetEnv("LOG_FORMAT"), "json"),

		ArtifactDir:    util.GetEnvString("ARTIFACT_DIR", "data/artifacts"),
		CorpusPath:     util.GetEnvString("CORPUS_PATH", "data/mentions.jsonl"),
		EventsPath:     util.GetEnv("EVENTS_PATH"),
		CurationPath:   util.GetEnvString("CURATION_PATH", "configs/curation.yaml"),
		RulesPath:      util.GetEnv("RULES_PATH"),
		MigrationsPath: util.GetEnvString("MIGRATIONS_PATH", "file://migrations"),

		GraphWorkers:         int(util.GetEnvNumeric("GRAPH_WORKERS", graph.DefaultWorkers)),
		TopK:                 int(util.GetEnvNumeric("TOP_K", graph.DefaultTopK)),
		ProgressEvery:        int(util.GetEnvNumeric("PROGRESS_EVERY", graph.DefaultProgressEvery)),
		MinArtifactFrequency: int(util.GetEnvNumeric("MIN_ARTIFACT_FREQUENCY", mapping.DefaultMinArtifactFrequency)),
		Retain:               int(util.GetEnvNumeric("SNAPSHOT_RETAIN", 5)),
		SnapshotTime:         util.GetEnv("SNAPSHOT_TIME"),

		DatabaseURL: util.GetEnv("DATABASE_URL"),

		RabbitMQ: RabbitMQConfig{
			User:     util.GetEnv("RABBITMQ_USER"),
			Password: util.GetEnv("RABBITMQ_PASSWORD"),
			Host:     util.GetEnv("RABBITMQ_HOST"),
			Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
		},
		S3: S3Config{
			Region:    util.GetEnv("AWS_REGION"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
			Bucket:    util.GetEnv("AWS_BUCKET"),
			Prefix:    util.GetEnvString("AWS_BACKUP_PREFIX", "snapshots"),
		},
		AI: AIConfig{
			Adapter:           strings.ToLower(util.GetEnv("AI_ADAPTER")),
			Model:             util.GetEnv("AI_CHAT_MODEL"),
			URL:               util.GetEnv("AI_CHAT_URL"),
			Key:               util.GetEnv("AI_CHAT_KEY"),
			RequestsPerSecond: util.GetEnvNumeric("AI_REQUESTS_PER_SECOND", 0),
			MaxConcurrent:     int(util.GetEnvNumeric("AI_MAX_CONCURRENT", 4)),
			MinConfidence:     util.GetEnvNumeric("AI_MIN_CONFIDENCE", 0),
		},

		AuthURL:      util.GetEnv("AUTH_URL"),
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
		Port:         util.GetEnvString("PORT", "8080"),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.ArtifactDir == "" {
		return fmt.Errorf("ARTIFACT_DIR must be set")
	}
	if c.GraphWorkers < 1 {
		return fmt.Errorf("GRAPH_WORKERS must be at least 1, got %d", c.GraphWorkers)
	}
	if c.TopK < 0 {
		return fmt.Errorf("TOP_K must not be negative, got %d", c.TopK)
	}
	switch c.AI.Adapter {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("unknown AI_ADAPTER %q", c.AI.Adapter)
	}
	return nil
}
