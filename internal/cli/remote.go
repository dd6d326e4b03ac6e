package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRemoteCmd создаёт группу команд для работы с pipewright-api.
func newRemoteCmd(g *globals) *cobra.Command {
	var apiURL string
	clientFn := func() *Client { return NewClient(apiURL) }

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Submit and inspect builds on a pipewright-api server",
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")

	cmd.AddCommand(
		newRemoteSubmitCmd(g, clientFn),
		newRemoteStatusCmd(g, clientFn),
		newRemoteScriptCmd(g, clientFn),
		newRemoteListCmd(g, clientFn),
		newRemotePushCmd(g, clientFn),
	)
	return cmd
}

func buildRow(b *BuildResponse) []string {
	return []string{b.ID, b.Name, b.Status, fmt.Sprintf("%d", len(b.Issues)), b.CreatedAt}
}

var buildHeaders = []string{"ID", "NAME", "STATUS", "ISSUES", "CREATED"}

func newRemoteSubmitCmd(g *globals, clientFn func() *Client) *cobra.Command {
	var flags assembleFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a build on the server using the local config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.loadConfig()
			if err != nil {
				return err
			}
			pipeline := flags.pipeline
			if pipeline == "" {
				if pipeline, err = f.ResolvePipeline(flags.recipe); err != nil {
					return err
				}
			}
			name := flags.name
			if name == "" {
				name = f.Name
			}

			build, err := clientFn().SubmitBuild(cmd.Context(), BuildRequest{
				Name:     name,
				Pipeline: pipeline,
				Sources:  f.Sources,
				Params:   f.Params,

				NoDependency: flags.noDependency,
			})
			if err != nil {
				return err
			}

			out := g.output()
			out.Success("Build queued: " + build.ID)
			out.Print(buildHeaders, [][]string{buildRow(build)}, build)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newRemoteStatusCmd(g *globals, clientFn func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Show build status and issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			build, err := clientFn().GetBuild(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := g.output()
			out.Print(buildHeaders, [][]string{buildRow(build)}, build)
			if !g.json {
				for _, issue := range build.Issues {
					out.Success(fmt.Sprintf("%s %s: %s", issue.Severity, issue.Code, issue.Message))
				}
				if build.Error != "" {
					out.Error(build.Error)
				}
			}
			return nil
		},
	}
}

func newRemoteScriptCmd(g *globals, clientFn func() *Client) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "script ID",
		Short: "Download the rendered script of a finished build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := clientFn().GetScript(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := g.output()
			if output == "" {
				out.Text(script)
				return nil
			}
			path := scriptPath(output)
			if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
				return fmt.Errorf("write script: %w", err)
			}
			out.Success("Pipeline written to " + path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file for the script")
	return cmd
}

func newRemoteListCmd(g *globals, clientFn func() *Client) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List builds on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			builds, err := clientFn().ListBuilds(cmd.Context(), status, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(builds))
			for i := range builds {
				rows[i] = buildRow(&builds[i])
			}
			g.output().Print(buildHeaders, rows, builds)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (QUEUED, RUNNING, SUCCEEDED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of builds")
	return cmd
}

func newRemotePushCmd(g *globals, clientFn func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "push NAME FILE",
		Short: "Upload an HCL template definition to the server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read template: %w", err)
			}
			if err := clientFn().PushTemplate(cmd.Context(), args[0], string(src)); err != nil {
				return err
			}
			g.output().Success("Template saved: " + args[0])
			return nil
		},
	}
}
