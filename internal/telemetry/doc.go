// Package telemetry обеспечивает наблюдаемость Pipewright.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики сборок и Template Store
//
// API и worker используют единый формат логирования
// и экспортируют метрики на /metrics endpoint. CLI пишет логи в stderr.
package telemetry
