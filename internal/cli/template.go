package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Pipewright/internal/catalog"
	"github.com/shaiso/Pipewright/internal/domain"
)

func newListCmd(g *globals) *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.loadConfig()
			if err != nil {
				return err
			}
			store := g.store(f, g.logger())

			names, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"NAME", "DESCRIPTION"}
			if detailed {
				headers = []string{"NAME", "INPUTS", "OUTPUTS", "PARAMS"}
			}

			var templates []*domain.TaskTemplate
			var rows [][]string
			for _, name := range names {
				tpl, err := store.Load(cmd.Context(), name)
				if errors.Is(err, catalog.ErrMalformedTemplate) {
					rows = append(rows, []string{name, "BROKEN: " + err.Error()})
					continue
				}
				if err != nil {
					return err
				}
				templates = append(templates, tpl)

				if detailed {
					rows = append(rows, []string{name, slotList(tpl.Inputs), slotList(tpl.Outputs), paramList(tpl.Params)})
				} else {
					rows = append(rows, []string{name, tpl.Description})
				}
			}

			g.output().Print(headers, rows, templates)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&detailed, "detailed", "d", false, "Show slots and parameters")
	return cmd
}

func newShowCmd(g *globals) *cobra.Command {
	var body bool

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Show template details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.loadConfig()
			if err != nil {
				return err
			}

			tpl, err := g.store(f, g.logger()).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := g.output()
			if g.json {
				out.JSON(tpl)
				return nil
			}

			rows := [][]string{
				{"name", tpl.Name},
				{"description", tpl.Description},
				{"inputs", slotList(tpl.Inputs)},
				{"outputs", slotList(tpl.Outputs)},
				{"params", paramList(tpl.Params)},
				{"includes", strings.Join(tpl.Includes, ", ")},
				{"depends", strings.Join(tpl.Depends, ", ")},
			}
			out.Table([]string{"FIELD", "VALUE"}, rows)
			if body {
				out.Text("\n" + tpl.Body)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&body, "body", false, "Print the template body")
	return cmd
}

// slotList форматирует слоты: "fastq_pair:pair, kmer_db:file(external)".
func slotList(slots []domain.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		p := s.Name + ":" + string(s.Shape)
		switch {
		case s.External:
			p += "(external)"
		case s.Terminal:
			p += "(terminal)"
		}
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}

// paramList форматирует параметры: "cpus=4, kmer_db(path)".
func paramList(params []domain.ParamSlot) string {
	parts := make([]string, len(params))
	for i, p := range params {
		s := p.Name
		if p.Path {
			s += "(path)"
		}
		if p.Default != nil {
			s += fmt.Sprintf("=%s", *p.Default)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}
