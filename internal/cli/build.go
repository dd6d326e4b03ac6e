package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Pipewright/internal/domain"
	"github.com/shaiso/Pipewright/internal/engine"
)

// assembleFlags — флаги, общие для build и check.
type assembleFlags struct {
	pipeline string
	recipe   string
	name     string

	noDependency bool
}

func (a *assembleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&a.pipeline, "pipeline", "t", "", `Pipeline topology, e.g. "trimmomatic (spades | skesa)"`)
	cmd.Flags().StringVarP(&a.recipe, "recipe", "r", "", "Use a named recipe from the config")
	cmd.Flags().StringVarP(&a.name, "name", "n", "", "Pipeline name (default from config)")
	cmd.Flags().BoolVar(&a.noDependency, "no-dependency", false, "Do not insert templates that others depend on")
}

// assembly — результат запуска Assembler из CLI.
type assembly struct {
	pipeline string
	result   *engine.Result
}

// assemble загружает конфигурацию и выполняет сборку.
// Фатальные ошибки возвращаются как есть; ошибки валидации выводятся
// отчётом и возвращаются как errReported.
func assemble(cmd *cobra.Command, g *globals, flags *assembleFlags, checkOnly bool) (*assembly, error) {
	f, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	pipeline := flags.pipeline
	if pipeline == "" {
		if pipeline, err = f.ResolvePipeline(flags.recipe); err != nil {
			return nil, err
		}
	}
	name := flags.name
	if name == "" {
		name = f.Name
	}

	logger := g.logger()
	asm := engine.NewAssembler(engine.Config{
		Templates: g.store(f, logger),
		Resources: g.env.Resources,
		Logger:    logger,
	})

	req := engine.NewRequest(name, f.BuildConfig(pipeline))
	req.CheckOnly = checkOnly
	req.NoDependency = flags.noDependency

	result, err := asm.Assemble(cmd.Context(), req)
	if result == nil {
		return nil, err
	}

	out := g.output()
	out.Issues(result.Report.Issues)
	if err != nil {
		if g.json {
			out.JSON(checkReport(pipeline, result, err))
		}
		errs := len(result.Report.Issues) - len(result.Report.Warnings())
		out.Error(fmt.Sprintf("pipeline has %d error(s)", errs))
		return nil, errReported
	}
	return &assembly{pipeline: pipeline, result: result}, nil
}

// checkReportJSON — JSON отчёт check.
type checkReportJSON struct {
	Valid    bool           `json:"valid"`
	Pipeline string         `json:"pipeline"`
	Topology string         `json:"topology"`
	Nodes    int            `json:"nodes"`
	Forks    int            `json:"forks"`
	Issues   []domain.Issue `json:"issues,omitempty"`
}

func checkReport(pipeline string, result *engine.Result, err error) checkReportJSON {
	return checkReportJSON{
		Valid:    err == nil,
		Pipeline: pipeline,
		Topology: engine.FormatTopology(result.Topology),
		Nodes:    result.Graph.Size(),
		Forks:    len(result.Graph.Forks()),
		Issues:   result.Report.Issues,
	}
}

func newBuildCmd(g *globals) *cobra.Command {
	var flags assembleFlags
	var output string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble a pipeline and render the Nextflow script",
		Long: `Assemble a pipeline from templates and render it.

The script is written to stdout, or to the file given with -o
(".nf" is appended when the name has no extension).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := assemble(cmd, g, &flags, false)
			if err != nil {
				return err
			}

			out := g.output()
			if output == "" {
				out.Text(a.result.Script)
				return nil
			}

			path := scriptPath(output)
			if err := os.WriteFile(path, []byte(a.result.Script), 0o644); err != nil {
				return fmt.Errorf("write script: %w", err)
			}
			out.Success(fmt.Sprintf("Pipeline written to %s (%d processes)", path, a.result.Graph.Size()))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file for the script")
	return cmd
}

// scriptPath добавляет расширение .nf, если у имени нет расширения.
func scriptPath(p string) string {
	if filepath.Ext(p) == "" {
		return p + ".nf"
	}
	return p
}

func newCheckCmd(g *globals) *cobra.Command {
	var flags assembleFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Assemble and validate a pipeline without rendering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := assemble(cmd, g, &flags, true)
			if err != nil {
				return err
			}

			out := g.output()
			if g.json {
				out.JSON(checkReport(a.pipeline, a.result, nil))
				return nil
			}
			out.Success(fmt.Sprintf("Pipeline OK: %s (%d processes, %d forks, %d warnings)",
				engine.FormatTopology(a.result.Topology),
				a.result.Graph.Size(),
				len(a.result.Graph.Forks()),
				len(a.result.Report.Warnings()),
			))
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newRecipesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List recipes defined in the config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.loadConfig()
			if err != nil {
				return err
			}

			type recipe struct {
				Name     string `json:"name"`
				Pipeline string `json:"pipeline"`
				Default  bool   `json:"default,omitempty"`
			}
			names := f.RecipeNames()
			recipes := make([]recipe, len(names))
			rows := make([][]string, len(names))
			for i, n := range names {
				recipes[i] = recipe{Name: n, Pipeline: f.Recipes[n], Default: n == f.Recipe}
				mark := ""
				if recipes[i].Default {
					mark = "*"
				}
				rows[i] = []string{n + mark, strings.TrimSpace(f.Recipes[n])}
			}

			g.output().Print([]string{"RECIPE", "PIPELINE"}, rows, recipes)
			return nil
		},
	}
}
