package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomhq/loom/internal/db"
	"github.com/loomhq/loom/internal/queue"
	"github.com/loomhq/loom/internal/storage"
	"github.com/loomhq/loom/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/loomhq/loom/pkg/ai"
	oai "github.com/loomhq/loom/pkg/ai/ollama"
	gai "github.com/loomhq/loom/pkg/ai/openai"
	"github.com/loomhq/loom/pkg/chunker"
	"github.com/loomhq/loom/pkg/graph"
	"github.com/loomhq/loom/pkg/graphstore"
	"github.com/loomhq/loom/pkg/ingest"
	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/logger/console"
	"github.com/loomhq/loom/pkg/textextract"
	"github.com/loomhq/loom/pkg/vector"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Could not create S3 client", "err", err)
	}
	objects := storage.NewS3Store(s3Client, util.GetEnv("AWS_BUCKET"))

	// GraphAIClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.GraphAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
		})
	}

	// Init pgx client
	pgConfig, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Invalid database url", "err", err)
	}
	pgConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pgConn, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init graph store
	graphClient, err := graphstore.NewClient(graphstore.Config{
		URI:      util.GetEnv("GRAPH_URI"),
		Username: util.GetEnv("GRAPH_USERNAME"),
		Password: util.GetEnv("GRAPH_PASSWORD"),
	})
	if err != nil {
		logger.Fatal("Could not create graph client", "err", err)
	}
	defer graphClient.Close(ctx)
	err = util.RetryErrWithContext(ctx, util.GetEnvInt("GRAPH_CONNECT_RETRIES", 5), func(ctx context.Context) error {
		return graphClient.VerifyConnectivity(ctx)
	})
	if err != nil {
		logger.Fatal("Graph store unreachable", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.ProcessQueue, queue.DeleteQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	// Domain wiring
	store := db.NewDocumentStore(pgConn)
	index := vector.NewPgxIndex(pgConn)
	splitter, err := chunker.New(util.GetEnvInt("CHUNK_MAX_TOKENS", chunker.DefaultMaxTokens), nil)
	if err != nil {
		logger.Fatal("Could not create chunker", "err", err)
	}

	writer := graph.NewWriter(graphClient)
	extractor := graph.NewExtractor(aiClient, nil, util.GetEnvInt("GLEANING_PASSES", 2))
	processor := graph.NewProcessor(
		extractor,
		writer,
		util.GetEnvInt("GRAPH_PARALLEL_MAX", graph.DefaultParallelMax),
		util.GetEnvInt("MIN_CHUNK_LENGTH", graph.DefaultMinChunkLength),
	)

	dispatcher := queue.NewDispatcher(ch)
	coordinator := ingest.NewCoordinator(ingest.CoordinatorParams{
		Store:       store,
		Objects:     objects,
		Dispatcher:  dispatcher,
		Publisher:   queue.NewStatusPublisher(ch),
		Extractor:   textextract.New(),
		Chunker:     splitter,
		AIClient:    aiClient,
		Index:       index,
		Writer:      writer,
		Processor:   processor,
		Enricher:    graph.NewEnricher(graphClient, index),
		Communities: graph.NewCommunityManager(graphClient),
		Config: ingest.Config{
			MaxUploadBytes:        int64(util.GetEnvInt("MAX_UPLOAD_BYTES", 0)),
			SimilarityThreshold:   util.GetEnvFloat("SIMILARITY_THRESHOLD", 0.8),
			SimilarityLimit:       util.GetEnvInt("SIMILARITY_LIMIT", 5),
			CoOccurrenceMinWeight: util.GetEnvInt("CO_OCCURRENCE_MIN_WEIGHT", 2),
		},
	})
	deleter := ingest.NewDeleter(store, graphClient, index, objects)

	// Sweep documents a previous worker left behind before consuming.
	if err := queue.RecoverStuckDocuments(ctx, dispatcher, store); err != nil {
		logger.Error("Recovery sweep failed", "err", err)
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so only one message is in
	// flight across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.ProcessQueue:
					processingErr = queue.ProcessDocumentMessage(ctx, coordinator, string(qm.msg.Body))
				case queue.DeleteQueue:
					processingErr = queue.ProcessDeleteMessage(ctx, deleter, string(qm.msg.Body))
				}

				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(ctx, consumerCh, store, qm.msg, qm.queueName, processingErr)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				aiHours := int(aiDuration.Hours())
				aiMinutes := int(aiDuration.Minutes()) % 60
				aiSeconds := int(aiDuration.Seconds()) % 60
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
				)

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}
