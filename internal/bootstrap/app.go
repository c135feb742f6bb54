package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"juris-rag/internal/ai"
	"juris-rag/internal/app"
	"juris-rag/internal/blob"
	"juris-rag/internal/cache"
	"juris-rag/internal/chatlog"
	"juris-rag/internal/config"
	"juris-rag/internal/embedding"
	mysqlClient "juris-rag/internal/platform/mysql"
	rabbitmqClient "juris-rag/internal/platform/rabbitmq"
	redisClient "juris-rag/internal/platform/redis"
	"juris-rag/internal/repository"
	"juris-rag/internal/retrieval"
	"juris-rag/internal/vectorindex"
	"juris-rag/internal/vectorindex/memory"
	"juris-rag/internal/vectorindex/pgindex"
	"juris-rag/internal/worker"
)

// modelBackend is what both model providers offer.
type modelBackend interface {
	ai.Completer
	embedding.Backend
	Ping(ctx context.Context) error
}

type App struct {
	Config        *config.Config
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Publisher     *rabbitmqClient.MessagePublisher
	MessageWorker *worker.MessagePersistWorker
	PGIndex       *pgindex.Index
	RAG           *app.RAGService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	checks := make(map[string]app.HealthCheck)

	var (
		documents app.DocumentStore
		chunks    retrieval.ChunkStore
		messages  chatlog.Store
	)
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.Env == "dev")
		if err != nil {
			return err
		}
		a.MySQL = db
		if err := mysqlClient.Migrate(db); err != nil {
			return err
		}
		documents = repository.NewDocumentRepository(db)
		chunks = repository.NewChunkRepository(db)
		messages = repository.NewMessageRepository(db)
		checks["mysql"] = func(ctx context.Context) error { return mysqlClient.Ping(ctx, db) }
	default:
		log.Printf("bootstrap: using in-memory document storage; data is lost on restart")
		documents = repository.NewMemoryDocumentRepository()
		memChunks := retrieval.NewMemoryChunkStore()
		chunks = memChunks
		messages = chatlog.NewMemoryStore()
		checks["storage"] = memChunks.Ping
	}

	var (
		historyCache chatlog.HistoryCache
		evicter      worker.HistoryEvicter
	)
	if cfg.Redis.Addr != "" {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		hc := cache.NewHistoryCache(client,
			config.Seconds(cfg.Redis.HistoryTTLSeconds),
			config.Seconds(cfg.Redis.HistoryDirtyTTLSeconds),
		)
		historyCache, evicter = hc, hc
		checks["redis"] = hc.Ping
	}

	var publisher chatlog.Publisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = conn
		a.Publisher = rabbitmqClient.NewMessagePublisher(conn, cfg.RabbitMQ.MessagePersistQueue)
		publisher = a.Publisher

		a.MessageWorker = worker.NewMessagePersistWorker(conn, messages, evicter, cfg.RabbitMQ.MessagePersistQueue)
		if err := a.MessageWorker.Start(ctx); err != nil {
			return fmt.Errorf("start message worker failed: %w", err)
		}
		checks["rabbitmq"] = func(context.Context) error { return rabbitmqClient.Ping(conn) }
	}

	backend, err := newModelBackend(cfg)
	if err != nil {
		return err
	}
	checks["generation"] = backend.Ping

	embedder := embedding.NewGenerator(backend, embedding.Config{
		BatchSize:         cfg.Embedding.BatchSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           config.Seconds(cfg.Embedding.TimeoutSeconds),
	})
	generator := ai.NewRetryingCompleter(backend, ai.RetryConfig{
		MaxRetries:        cfg.LLM.MaxRetries,
		BaseDelay:         time.Duration(cfg.LLM.RetryBaseDelayMS) * time.Millisecond,
		AttemptTimeout:    config.Seconds(cfg.LLM.TimeoutSeconds),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})

	var index vectorindex.Index
	switch cfg.VectorIndex.Driver {
	case config.VectorIndexPGVector:
		pg, err := pgindex.New(ctx, pgindex.Config{
			DSN:       cfg.VectorIndex.DSN,
			Table:     cfg.VectorIndex.Table,
			Dimension: cfg.VectorIndex.Dimension,
		})
		if err != nil {
			return err
		}
		a.PGIndex = pg
		index = pg
		checks["vector_index"] = pg.Ping
	default:
		mem := memory.New()
		index = mem
		checks["vector_index"] = func(ctx context.Context) error {
			_, err := mem.Count(ctx)
			return err
		}
	}

	retriever := retrieval.New(index, chunks, embedder, retrieval.Config{MinScore: cfg.RAG.MinScore})
	if cfg.VectorIndex.Driver != config.VectorIndexPGVector {
		if scanner, ok := chunks.(retrieval.ChunkScanner); ok {
			loaded, err := retriever.Rebuild(ctx, scanner)
			if err != nil {
				return err
			}
			log.Printf("bootstrap: loaded %d stored vectors into memory index", loaded)
		}
	}

	blobs := blob.New(cfg.Blob.BaseURL)
	checks["blob"] = blobs.Ping

	a.RAG = app.NewRAGService(app.Dependencies{
		Documents:    documents,
		Retriever:    retriever,
		ChatLog:      chatlog.New(messages, publisher, historyCache),
		Blobs:        blobs,
		Generator:    generator,
		Embedder:     embedder,
		HealthChecks: checks,
	}, app.Options{
		ChunkSize:        cfg.RAG.ChunkSize,
		ChunkOverlap:     cfg.RAG.ChunkOverlap,
		TopK:             cfg.RAG.TopK,
		MaxChatHistory:   cfg.RAG.MaxChatHistory,
		SummaryMaxChunks: cfg.RAG.SummaryMaxChunks,
		MaxUploadBytes:   cfg.MaxUploadBytes(),
	})

	log.Printf("bootstrap: storage=%s llm=%s vector_index=%s blob=%s",
		cfg.Storage.Driver, cfg.LLM.Provider, cfg.VectorIndex.Driver, cfg.Blob.BaseURL)
	return nil
}

func newModelBackend(cfg *config.Config) (modelBackend, error) {
	aiCfg := ai.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		ChatModel:      cfg.LLM.Model,
		EmbeddingModel: cfg.Embedding.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        config.Seconds(cfg.LLM.TimeoutSeconds),
	}
	if cfg.LLM.Provider == config.ProviderOllama {
		client, err := ai.NewOllamaClient(aiCfg)
		if err != nil {
			return nil, fmt.Errorf("create ollama client failed: %w", err)
		}
		return client, nil
	}
	return ai.NewOpenAICompatibleClient(aiCfg), nil
}

func (a *App) Close() error {
	var closeErr error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.PGIndex != nil {
		a.PGIndex.Close()
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
