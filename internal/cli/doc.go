// Package cli реализует инструмент командной строки Pipewright.
//
// # Обзор
//
// Основной режим локальный: CLI читает YAML конфигурацию, собирает
// pipeline из шаблонов тем же Assembler, что и сервер, и пишет
// Nextflow скрипт в stdout или в файл. Группа remote работает с
// pipewright-api по HTTP и не импортирует internal/api.
//
// # Ключевые компоненты
//
// ## Run и Env
//
// Run выполняет команду и возвращает код выхода. Env подменяет stdout,
// stderr, окружение и проверку внешних ресурсов (в тестах).
// Фатальная ошибка сборки выводится в stderr одной строкой:
//
//	config key 'kmer_db1': external resource not found: '/data/db1'
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные и скрипт выводятся в stdout, отчёт о проблемах и сообщения
// в stderr. Это позволяет использовать pipe: pipewright build > typing.nf
//
// ## Client
//
// HTTP-клиент для pipewright-api (сборки и шаблоны).
//
//	client := cli.NewClient("http://localhost:8080")
//	build, err := client.GetBuild(ctx, id)
//
// ## Commands
//
//   - build, check — сборка и проверка pipeline
//   - list, show — шаблоны
//   - recipes — рецепты из конфигурации
//   - remote: submit, status, script, builds, push
package cli
