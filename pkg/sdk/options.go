package lexdrill

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs     []string
	password  string
	keyPrefix string

	sqlDriver string // "postgres" or "sqlite"
	sqlDSN    string

	generator Generator
	openAI    *openAIConfig
	workers   int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey connects the session and inventory store to a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis connects the session and inventory store to a Redis instance.
func WithRedis(addr, password string) Option {
	return WithValkey(addr, password)
}

// WithKeyPrefix namespaces every key the client writes. Default: "lexdrill:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithPostgres stores the catalog and progress in PostgreSQL.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.sqlDriver = "postgres"
		c.sqlDSN = dsn
	})
}

// WithSQLite stores the catalog and progress in an SQLite file.
func WithSQLite(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.sqlDriver = "sqlite"
		c.sqlDSN = dsn
	})
}

// WithGenerator sets the drill content generator used by RunWorker.
func WithGenerator(g Generator) Option {
	return optionFunc(func(c *clientConfig) {
		c.generator = g
	})
}

type openAIConfig struct {
	apiKey  string
	baseURL string
	model   string
}

// WithOpenAI generates drills with an OpenAI-compatible chat completion API.
// An empty baseURL uses the OpenAI endpoint. Takes precedence over WithGenerator.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAI = &openAIConfig{apiKey: apiKey, baseURL: baseURL, model: model}
	})
}

// WithWorkers sets how many jobs RunWorker processes concurrently. Default: 1.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
