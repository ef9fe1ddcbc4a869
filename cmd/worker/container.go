// cmd/worker/container.go
//
// Composition root. Owns infrastructure (DB, filesystem, AI providers)
// and wires the pipeline, worker and admin API together. This is the
// only place that knows about every module.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Abraxas-365/examforge/pkg/ai/embedding"
	"github.com/Abraxas-365/examforge/pkg/ai/llm"
	"github.com/Abraxas-365/examforge/pkg/ai/providers/aigemini"
	"github.com/Abraxas-365/examforge/pkg/ai/providers/aiopenai"
	"github.com/Abraxas-365/examforge/pkg/config"
	"github.com/Abraxas-365/examforge/pkg/dedupx"
	"github.com/Abraxas-365/examforge/pkg/fsx"
	"github.com/Abraxas-365/examforge/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/examforge/pkg/genx"
	"github.com/Abraxas-365/examforge/pkg/httpapi"
	"github.com/Abraxas-365/examforge/pkg/jobx"
	"github.com/Abraxas-365/examforge/pkg/jobx/jobxpostgres"
	"github.com/Abraxas-365/examforge/pkg/jobx/jobxsqlite"
	"github.com/Abraxas-365/examforge/pkg/logx"
	"github.com/Abraxas-365/examforge/pkg/quiz/quizsqlx"
	"github.com/Abraxas-365/examforge/pkg/ratex"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Container holds shared infrastructure and the composed modules.
type Container struct {
	Config *config.Config

	DB         *sqlx.DB
	FileSystem fsx.FileSystem

	Chat     llm.Chat
	Embedder embedding.Embedder
	Limiter  *ratex.Limiter

	JobStore  jobx.Store
	QuizStore *quizsqlx.Store
	Dedup     *dedupx.Engine
	Pipeline  *genx.Engine

	Worker *jobx.Worker
	API    *httpapi.Server
}

func NewContainer(ctx context.Context, cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initDatabase()
	c.initFilesystem()
	c.initProviders(ctx)
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

func (c *Container) initDatabase() {
	cfg := c.Config.Database

	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			logx.Fatalf("Failed to connect to postgres: %v", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		c.DB = db

		store, err := jobxpostgres.NewStore(db)
		if err != nil {
			logx.Fatalf("Failed to initialize postgres job store: %v", err)
		}
		c.JobStore = store
		logx.Info("  ✅ Postgres connected")

	default:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				logx.Fatalf("Failed to create data directory: %v", err)
			}
		}

		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_loc=UTC", cfg.SQLitePath)
		db, err := sqlx.Connect("sqlite3", dsn)
		if err != nil {
			logx.Fatalf("Failed to open sqlite at %s: %v", cfg.SQLitePath, err)
		}
		// SQLite has one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		c.DB = db

		store, err := jobxsqlite.NewStore(db.DB)
		if err != nil {
			logx.Fatalf("Failed to initialize sqlite job store: %v", err)
		}
		c.JobStore = store
		logx.Infof("  ✅ SQLite ready at %s", cfg.SQLitePath)
	}
}

func (c *Container) initFilesystem() {
	fs, err := fsxlocal.NewLocalFileSystem(".")
	if err != nil {
		logx.Fatalf("Failed to initialize local filesystem: %v", err)
	}
	c.FileSystem = fs
	logx.Info("  ✅ Local filesystem ready")
}

func (c *Container) initProviders(ctx context.Context) {
	cfg := c.Config.AI

	switch cfg.Provider {
	case "openai":
		provider := aiopenai.NewOpenAIProvider(cfg.OpenAIAPIKey)
		c.Chat = provider
		c.Embedder = provider
		logx.Info("  ✅ OpenAI provider ready")

	default:
		var opts []aigemini.ProviderOption
		if cfg.EmbeddingModel != "" {
			opts = append(opts, aigemini.WithEmbeddingModel(cfg.EmbeddingModel))
		}
		provider, err := aigemini.NewGeminiProvider(ctx, cfg.GeminiAPIKey, opts...)
		if err != nil {
			logx.Fatalf("Failed to initialize Gemini provider: %v", err)
		}
		c.Chat = provider
		c.Embedder = provider
		logx.Info("  ✅ Gemini provider ready")
	}

	c.Limiter = ratex.New(
		ratex.WithInterval(cfg.RequestInterval),
		ratex.WithCooldown(cfg.CooldownMin, cfg.CooldownMax),
	)
}

func (c *Container) initModules() {
	quizStore, err := quizsqlx.NewStore(c.DB)
	if err != nil {
		logx.Fatalf("Failed to initialize question store: %v", err)
	}
	c.QuizStore = quizStore

	cache, err := dedupx.NewSQLCache(c.DB)
	if err != nil {
		logx.Fatalf("Failed to initialize embedding cache: %v", err)
	}

	c.Dedup = dedupx.New(quizStore,
		dedupx.WithEmbedder(c.Embedder, cache),
		dedupx.WithFuzzyThreshold(c.Config.Dedup.FuzzyThreshold),
		dedupx.WithEmbeddingThreshold(c.Config.Dedup.EmbeddingThreshold),
		dedupx.WithBackfillLimit(c.Config.Dedup.BackfillLimit),
	)

	chatOpts := []llm.Option{
		llm.WithMaxTokens(c.Config.AI.MaxTokens),
		llm.WithTemperature(float32(c.Config.AI.Temperature)),
	}
	if c.Config.AI.ChatModel != "" {
		chatOpts = append(chatOpts, llm.WithModel(c.Config.AI.ChatModel))
	}

	c.Pipeline = genx.NewEngine(c.Chat, genx.NewFileResolver(c.FileSystem), c.Dedup, quizStore,
		genx.WithLimiter(c.Limiter),
		genx.WithHistory(quizStore),
		genx.WithChatOptions(chatOpts...),
		genx.WithMaxRetries(uint64(c.Config.AI.MaxRetries)),
	)

	c.Worker = jobx.NewWorker(c.JobStore,
		jobx.WithPollInterval(c.Config.Jobs.PollInterval),
		jobx.WithStaleAfter(c.Config.Jobs.StaleAfter),
		jobx.WithReaperInterval(c.Config.Jobs.ReaperInterval),
		jobx.WithShutdownTimeout(c.Config.Jobs.ShutdownTimeout),
		jobx.WithPauser(jobx.NewFlagPauser(c.FileSystem, c.Config.Jobs.PauseFlagPath)),
	)
	c.Worker.Register(genx.JobType, c.Pipeline.Handler())

	c.API = httpapi.New(c.JobStore, c.FileSystem, c.Config.Jobs.PauseFlagPath, c.Config.Jobs.MaxAttempts)

	logx.Info("  ✅ Modules wired")
}

// Cleanup releases infrastructure resources.
func (c *Container) Cleanup() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.WithError(err).Warn("closing database failed")
		}
	}
}
