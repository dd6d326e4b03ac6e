// Pipewright API — HTTP сервер сборок и шаблонов.
//
// Принимает сборки, сохраняет их в PostgreSQL и публикует
// build.requested в RabbitMQ; сборку выполняет pipewright-worker.
// POST /api/v1/builds/check собирает синхронно, без сохранения.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Pipewright/internal/api"
	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/config"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/mq"
	"github.com/shaiso/Pipewright/internal/repo"
	"github.com/shaiso/Pipewright/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting pipewright-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	templateRepo := repo.NewTemplateRepo(pool)
	buildRepo := repo.NewBuildRepo(pool)

	// Директории шаблонов из PIPEWRIGHT_TEMPLATES; шаблоны из БД перекрывают их.
	// Пути клиента проверяются только внутри PIPEWRIGHT_RESOURCE_ROOTS
	env := &config.File{}
	env.ApplyEnv(os.LookupEnv)
	store := catalog.NewStore(catalog.Layered(templateRepo, env.Templates), logger)

	cfg := api.Config{
		Catalog:   store,
		Templates: templateRepo,
		Builds:    buildRepo,
		Assembler: engine.NewAssembler(engine.Config{
			Templates: store,
			Resources: engine.RootedResources{Roots: env.ResourceRoots},
			Logger:    logger,
		}),
		Logger: logger,
	}

	// RabbitMQ опционален: без него сборки подхватывает polling воркера
	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	mqConn, err := mq.Dial(dialCtx, mq.URL(), logger)
	dialCancel()
	if err != nil {
		logger.Warn("RabbitMQ not available, builds will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		cfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	api.NewHandler(cfg).RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
