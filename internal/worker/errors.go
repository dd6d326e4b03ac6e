package worker

import "errors"

// Ошибки воркера.
var (
	// ErrBuildNotFound — сборка не найдена в БД.
	ErrBuildNotFound = errors.New("build not found")

	// ErrBuildNotQueued — сборка не в статусе QUEUED (уже взята или завершена).
	ErrBuildNotQueued = errors.New("build is not in QUEUED status")
)
