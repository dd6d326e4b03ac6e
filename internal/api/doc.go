// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (каталог, репозитории, assembler, publisher)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, metrics, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - template_handler.go — обработчики для /templates и /fragments
//   - build_handler.go    — обработчики для /builds
//
// Сборки выполняются асинхронно воркером; POST /builds/check выполняет
// сборку синхронно, без рендеринга и без сохранения.
package api
