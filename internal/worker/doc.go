// Package worker выполняет сборки pipeline в фоне.
//
// # Обзор
//
// Worker — stateless компонент, который:
//
//   - Получает сборки из очереди builds.requested (event-driven)
//   - Периодически проверяет QUEUED сборки в БД (polling fallback)
//   - Атомарно забирает сборку (QUEUED → RUNNING), запускает Assembler
//   - Сохраняет скрипт или ошибку и проблемы валидации
//   - Публикует build.completed
//
// Несколько воркеров могут потреблять одну очередь: BuildRepo.Claim
// гарантирует, что сборку выполнит только один из них.
//
//	w := worker.New(worker.Config{
//	    Builds:    buildRepo,
//	    Assembler: engine.NewAssembler(engine.Config{Templates: store}),
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    Logger:    logger,
//	})
//	w.Start(ctx)
//	defer w.Stop()
//
// # Ошибки
//
// Ошибка сборки (валидация, отсутствующий ресурс) — нормальный итог:
// сборка получает статус FAILED, сообщение подтверждается. Ошибка
// инфраструктуры (БД недоступна) возвращается consumer'у, и сообщение
// повторяется один раз, затем уходит в DLQ.
package worker
