// Pipewright CLI — собирает Nextflow pipeline из шаблонов задач.
//
// Использование:
//
//	pipewright [-c config.yaml] [--templates DIR] [--json] <command> [flags]
//
// Команды:
//
//	build    Собрать pipeline и вывести скрипт
//	check    Проверить pipeline без рендеринга
//	list     Список шаблонов
//	show     Описание шаблона
//	recipes  Рецепты из конфигурации
//	remote   Работа с pipewright-api
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Pipewright/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, version, os.Args[1:], cli.Env{})
	cancel()
	os.Exit(code)
}
