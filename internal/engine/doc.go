// Package engine содержит движок сборки pipeline.
//
// Включает:
//   - topology.go  — разбор строки pipeline ("a b (c | d)")
//   - params.go    — Parameter Resolver: значения по ключу (имя, instance)
//   - binder.go    — Channel Binder: связывание слотов с каналами
//   - fork.go      — Fork Resolver: развёртывание веток в lane
//   - graph.go     — граф сборки и топологическая сортировка
//   - validate.go  — проверки графа перед рендерингом
//   - render.go    — Script Renderer (Go text/template)
//   - assembler.go — сессия сборки, связывающая всё вместе
//
// Engine не исполняет процессы и не планирует отрендеренный pipeline:
// результат сборки — один текстовый скрипт.
package engine
