package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kittclouds/skillscan/pkg/discovery"
	"github.com/kittclouds/skillscan/pkg/pipeline"
)

type extractOptions struct {
	role   string
	format string
}

// documentResult is one document of the JSON output.
type documentResult struct {
	Source      string                     `json:"source"`
	Role        string                     `json:"role"`
	Tier        string                     `json:"tier"`
	Matches     []pipeline.CompetenceMatch `json:"matches"`
	Discoveries []discoveryOut             `json:"discoveries,omitempty"`
	Unavailable map[string]string          `json:"unavailable,omitempty"`
}

type discoveryOut struct {
	Term    string `json:"term"`
	Context string `json:"context"`
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [file...]",
		Short: "Extract competences from text files or stdin",
		Long: `Extract competences from each file (or stdin when none is given).
Unknown noun-like terms are recorded in the discovery ledger.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "json" && opts.format != "csv" {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			a, err := openApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			sources, inputs, err := readInputs(args, cmd.InOrStdin(), opts.role)
			if err != nil {
				return err
			}
			results, err := a.engine.ProcessBatch(cmd.Context(), inputs)
			if results == nil {
				return err
			}
			if err != nil {
				a.logger.Warn("discoveries not recorded", "err", err)
			}
			return writeResults(cmd.OutOrStdout(), opts.format, sources, inputs, results)
		},
	}
	cmd.Flags().StringVarP(&opts.role, "role", "r", "", "role context attached to every match")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "output format: json or csv")
	return cmd
}

func readInputs(paths []string, stdin io.Reader, role string) ([]string, []pipeline.Input, error) {
	if len(paths) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, nil, fmt.Errorf("read stdin: %w", err)
		}
		return []string{"-"}, []pipeline.Input{{Text: string(data), Role: role}}, nil
	}
	inputs := make([]pipeline.Input, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, pipeline.Input{Text: string(data), Role: role})
	}
	return paths, inputs, nil
}

func writeResults(w io.Writer, format string, sources []string, inputs []pipeline.Input, results []*pipeline.Result) error {
	switch format {
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(append([]string{"source"}, pipeline.RecordHeader...)); err != nil {
			return err
		}
		for i, res := range results {
			for _, m := range res.Matches {
				if err := cw.Write(append([]string{sources[i]}, m.Record()...)); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()

	case "json":
		out := make([]documentResult, len(results))
		for i, res := range results {
			out[i] = documentResult{
				Source:      sources[i],
				Role:        inputs[i].Role,
				Tier:        string(res.Tier),
				Matches:     res.Matches,
				Discoveries: discoveriesOut(res.Discoveries),
			}
			if out[i].Matches == nil {
				out[i].Matches = []pipeline.CompetenceMatch{}
			}
			for _, p := range res.Passes {
				if p.Err != nil {
					if out[i].Unavailable == nil {
						out[i].Unavailable = make(map[string]string)
					}
					out[i].Unavailable[string(p.Strategy)] = p.Err.Error()
				}
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)

	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func discoveriesOut(ds []discovery.Candidate) []discoveryOut {
	out := make([]discoveryOut, 0, len(ds))
	for _, d := range ds {
		out = append(out, discoveryOut{Term: d.Term, Context: d.Context})
	}
	return out
}
