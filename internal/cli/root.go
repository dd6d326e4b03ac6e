package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/config"
	"github.com/shaiso/Pipewright/internal/engine"
	"github.com/shaiso/Pipewright/internal/telemetry"
)

// errReported — ошибка уже выведена (отчёт о проблемах), Run только
// выставляет код выхода.
var errReported = errors.New("reported")

// Env — окружение запуска CLI. Поля с nil значением берутся из процесса.
type Env struct {
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)

	// Resources — проверка внешних ресурсов (по умолчанию файловая система).
	Resources engine.ResourceChecker
}

func (e *Env) defaults() {
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.LookupEnv == nil {
		e.LookupEnv = os.LookupEnv
	}
	if e.Resources == nil {
		e.Resources = engine.OSResources{}
	}
}

// globals — значения persistent флагов.
type globals struct {
	env       Env
	configs   []string
	templates []string
	json      bool
	logLevel  string
}

func (g *globals) output() *Output {
	return NewOutput(g.json, g.env.Stdout, g.env.Stderr)
}

func (g *globals) logger() *slog.Logger {
	// Для CLI по умолчанию только предупреждения: stderr занят отчётом
	level := slog.LevelWarn
	if v, ok := g.env.LookupEnv("LOG_LEVEL"); ok && v != "" {
		level = telemetry.ParseLevel(v)
	}
	if g.logLevel != "" {
		level = telemetry.ParseLevel(g.logLevel)
	}
	return telemetry.SetupLoggerTo(g.env.Stderr, level, "text")
}

// loadConfig читает слои конфигурации и применяет окружение.
func (g *globals) loadConfig() (*config.File, error) {
	f, err := config.Load(g.configs...)
	if err != nil {
		return nil, err
	}
	f.ApplyEnv(g.env.LookupEnv)
	f.Templates = append(f.Templates, g.templates...)
	return f, nil
}

// store создаёт Template Store: пользовательские директории перекрывают
// встроенную библиотеку, ранние директории перекрывают поздние.
func (g *globals) store(f *config.File, logger *slog.Logger) *catalog.Store {
	return catalog.NewStore(catalog.Layered(nil, f.Templates), logger)
}

// NewRootCmd создаёт корневую команду pipewright.
func NewRootCmd(version string, env Env) *cobra.Command {
	env.defaults()
	g := &globals{env: env}

	root := &cobra.Command{
		Use:           "pipewright",
		Short:         "Pipewright — assembles Nextflow pipelines from task templates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	root.PersistentFlags().StringSliceVarP(&g.configs, "config", "c", nil, "Config file (YAML); repeat to layer, later files override")
	root.PersistentFlags().StringSliceVar(&g.templates, "templates", nil, "Extra template directory (HCL); overrides built-in templates")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL, else warn)")

	root.AddCommand(
		newBuildCmd(g),
		newCheckCmd(g),
		newListCmd(g),
		newShowCmd(g),
		newRecipesCmd(g),
		newRemoteCmd(g),
	)
	return root
}

// Run выполняет CLI и возвращает код выхода.
// Фатальная ошибка выводится одной строкой в stderr, код выхода 1.
func Run(ctx context.Context, version string, args []string, env Env) int {
	root := NewRootCmd(version, env)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			NewOutput(false, root.OutOrStdout(), root.ErrOrStderr()).Error(err.Error())
		}
		return 1
	}
	return 0
}
