package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/meetlens/meetlens/config"
	"github.com/meetlens/meetlens/internal/api/handlers"
	"github.com/meetlens/meetlens/internal/api/middleware"
	"github.com/meetlens/meetlens/internal/api/routes"
	"github.com/meetlens/meetlens/internal/audio"
	"github.com/meetlens/meetlens/internal/cache"
	"github.com/meetlens/meetlens/internal/events"
	"github.com/meetlens/meetlens/internal/logger"
	"github.com/meetlens/meetlens/internal/metrics"
	"github.com/meetlens/meetlens/internal/models"
	"github.com/meetlens/meetlens/internal/pipeline"
	"github.com/meetlens/meetlens/internal/providers/llm"
	"github.com/meetlens/meetlens/internal/providers/stt"
	"github.com/meetlens/meetlens/internal/services"
	"github.com/meetlens/meetlens/internal/storage"
	"github.com/meetlens/meetlens/internal/workers"

	mongorepo "github.com/meetlens/meetlens/internal/repositories/mongo"
	pgrepo "github.com/meetlens/meetlens/internal/repositories/postgres"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init MongoDB
	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := config.PostgresDB.AutoMigrate(
		&models.VocabularyTerm{},
		&models.AccuracyMetrics{},
		&models.CorrectionPattern{},
	); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	mongoDBName := os.Getenv("MONGO_DB")
	if mongoDBName == "" {
		mongoDBName = "meetlens"
	}
	mongoDB := config.MongoClient.Database(mongoDBName)

	// Providers
	sttProvider, promptFormat, err := newSTTProvider(ctx)
	if err != nil {
		log.WithError(err).Fatal("STT provider init error")
	}
	defer sttProvider.Close()

	var llmProvider llm.Provider
	if project := os.Getenv("VERTEX_PROJECT_ID"); project != "" {
		location := os.Getenv("VERTEX_LOCATION")
		if location == "" {
			location = "europe-west1"
		}
		model := os.Getenv("VERTEX_MODEL")
		if model == "" {
			model = "gemini-1.5-flash"
		}
		llmProvider, err = llm.NewVertexGemini(ctx, project, location, model)
		if err != nil {
			log.WithError(err).Fatal("LLM provider init error")
		}
		defer llmProvider.Close()
	} else {
		log.Warn("VERTEX_PROJECT_ID not set, text enhancement disabled")
	}

	store, err := storage.NewGCSStore(ctx, os.Getenv("GCS_BUCKET"))
	if err != nil {
		log.WithError(err).Fatal("GCS init error")
	}
	defer store.Close()

	// Repositories and services
	redisCache := cache.NewRedisCache(config.RedisClient)
	vocabRepo := pgrepo.NewVocabularyRepo(config.PostgresDB)
	metricsRepo := pgrepo.NewMetricsRepo(config.PostgresDB)
	patternRepo := pgrepo.NewPatternRepo(config.PostgresDB)
	transcriptRepo := mongorepo.NewTranscriptRepo(mongoDB)
	correctionRepo := mongorepo.NewCorrectionRepo(mongoDB)

	prom := metrics.NewMetrics()
	vocabService := services.NewVocabularyService(vocabRepo, redisCache)
	accuracyService := services.NewAccuracyService(metricsRepo, patternRepo, vocabRepo, correctionRepo, prom, log)

	publisher := events.NewPublisher(events.Config{
		Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
		Topic:   os.Getenv("KAFKA_TOPIC"),
	}, log)
	defer publisher.Close()

	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	preprocessor := audio.NewPreprocessor(ffmpegPath, os.TempDir(), log)

	executor := pipeline.NewExecutor(sttProvider, vocabService, pipeline.ExecutorConfig{
		PromptFormat: promptFormat,
	}, log)
	reconciler := pipeline.NewReconciler(pipeline.ReconcilerConfig{}, log)

	orchestrator := pipeline.NewOrchestrator(pipeline.OrchestratorDeps{
		Downloader:   store,
		Preprocessor: preprocessor,
		Executor:     executor,
		Reconciler:   reconciler,
		Vocabulary:   vocabService,
		LLM:          llmProvider,
		Transcripts:  transcriptRepo,
		Accuracy:     metricsRepo,
		Status:       &workers.RedisStatusSink{Redis: config.RedisClient},
		Events:       publisher,
		Prometheus:   prom,
	}, pipeline.PlannerConfig{}, pipeline.OrchestratorConfig{
		WorkerCap: envInt("PIPELINE_WORKER_CAP", 10),
	}, log)

	pool := &workers.TranscriptionWorkerPool{
		Redis:        config.RedisClient,
		Orchestrator: orchestrator,
		NumWorkers:   envInt("NUM_WORKERS", 3),
		Logger:       log,
	}
	if err := pool.Start(ctx); err != nil {
		log.WithError(err).Fatal("worker pool start error")
	}
	log.Info("transcription workers started")

	// Periodic drain of pending reviewer corrections
	go drainCorrections(ctx, accuracyService, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.RegisterRoutes(r, routes.Deps{
		Transcripts: handlers.NewTranscriptHandler(transcriptRepo, store, store, config.RedisClient, pool.Stream),
		Vocabulary:  handlers.NewVocabularyHandler(vocabService),
		Accuracy:    handlers.NewAccuracyHandler(accuracyService),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func newSTTProvider(ctx context.Context) (stt.Provider, string, error) {
	name := os.Getenv("STT_PROVIDER")
	format := promptFormatFor(name)

	switch name {
	case "whisper":
		timeout := time.Duration(envInt("WHISPER_TIMEOUT_SECONDS", 120)) * time.Second
		p, err := stt.NewWhisper(
			os.Getenv("WHISPER_ENDPOINT"),
			os.Getenv("WHISPER_API_KEY"),
			os.Getenv("WHISPER_MODEL"),
			timeout,
		)
		return p, format, err
	default:
		p, err := stt.NewGoogleSpeech(ctx)
		return p, format, err
	}
}

// promptFormatFor picks the vocabulary prompt shape the engine expects:
// whisper takes one glossary sentence, speech contexts take bare phrases.
func promptFormatFor(provider string) string {
	if provider == "whisper" {
		return "whisper"
	}
	return "phrases"
}

// drainCorrections periodically applies reviewer corrections that arrived
// while no worker was watching, one organization at a time.
func drainCorrections(ctx context.Context, svc services.AccuracyService, log *logrus.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, org := range splitList(os.Getenv("CORRECTION_ORGS")) {
				if _, err := svc.ProcessPending(ctx, org); err != nil {
					log.WithError(err).Warn("pending corrections drain failed")
				}
			}
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
