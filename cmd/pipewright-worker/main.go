// Pipewright Worker — выполняет сборки из очереди.
//
// Worker:
//   - Получает build.requested из RabbitMQ
//   - Периодически подхватывает QUEUED сборки из PostgreSQL (polling)
//   - Захватывает сборку атомарно, собирает и сохраняет скрипт или отчёт
//   - Публикует build.completed
//   - Сбрасывает кэш шаблонов по template.changed
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/config"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/mq"
	"github.com/shaiso/Pipewright/internal/repo"
	"github.com/shaiso/Pipewright/internal/telemetry"
	"github.com/shaiso/Pipewright/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting pipewright-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
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
	logger.Info("database connected")

	env := &config.File{}
	env.ApplyEnv(os.LookupEnv)
	store := catalog.NewStore(catalog.Layered(repo.NewTemplateRepo(pool), env.Templates), logger)

	cfg := worker.Config{
		Builds: repo.NewBuildRepo(pool),
		Assembler: engine.NewAssembler(engine.Config{
			Templates: store,
			Resources: engine.RootedResources{Roots: env.ResourceRoots},
			Logger:    logger,
		}),
		Logger: logger,
	}
	if v := os.Getenv("WORKER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}

	// RabbitMQ
	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	mqConn, err := mq.Dial(dialCtx, mq.URL(), logger)
	dialCancel()
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("topology ready", "topology", mq.TopologyInfo())
		}
		cfg.Conn = mqConn
		cfg.Publisher = mq.NewPublisher(mqConn, logger)
		cfg.Templates = store
	}

	w := worker.New(cfg)
	w.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if mqConn != nil && !mqConn.IsConnected() {
			w.Write([]byte("ok (polling only, broker disconnected)"))
			return
		}
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	w.Stop()
	logger.Info("pipewright-worker stopped")
}
