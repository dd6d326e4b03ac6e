// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий сборок с publisher confirms
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - build.requested — сборка поставлена в очередь (API → Worker)
//   - build.completed — сборка завершена (Worker → подписчики)
//
// Consumer подтверждает сообщение после обработки. Первая ошибка
// обработчика возвращает сообщение в очередь; повторная ошибка или
// ErrPermanent отправляет его в dlq.builds.
//
// Exchanges:
//   - pipewright.builds — события сборок
//   - pipewright.dlq    — dead letter queue
package mq
