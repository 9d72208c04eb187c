package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/spkrec-export/onnx"
)

func newInspectCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <file.onnx>",
		Short: "Print the opset, inputs, outputs and metadata of an ONNX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := onnx.Inspect(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "File:     %s\n", args[0])
			fmt.Fprintf(out, "IR:       %d\n", info.IRVersion)
			fmt.Fprintf(out, "Opset:    %d\n", info.OpsetVersion)
			fmt.Fprintf(out, "Producer: %s %s\n", info.ProducerName, info.ProducerVersion)
			for _, in := range info.Inputs {
				fmt.Fprintf(out, "Input:    %s %s\n", in.Name, dims(in))
			}
			for _, o := range info.Outputs {
				fmt.Fprintf(out, "Output:   %s %s\n", o.Name, dims(o))
			}
			fmt.Fprintf(out, "Nodes:    %d (%s)\n", info.NodeCount, opSummary(info.OpCounts))
			fmt.Fprintf(out, "Weights:  %d\n", info.WeightCount)
			if len(info.Metadata) > 0 {
				fmt.Fprintln(out, "Metadata:")
				keys := make([]string, 0, len(info.Metadata))
				for k := range info.Metadata {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "  %s: %s\n", k, info.Metadata[k])
				}
			}
			if info.DocString != "" {
				fmt.Fprintf(out, "Doc:      %s\n", info.DocString)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func dims(t onnx.Tensor) string {
	parts := make([]string, len(t.Dims))
	for i, d := range t.Dims {
		if d < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = fmt.Sprint(d)
	}
	s := "[" + strings.Join(parts, ", ") + "]"
	if !t.Static {
		s += " (dynamic)"
	}
	return s
}

func opSummary(counts map[string]int) string {
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for i, op := range ops {
		ops[i] = fmt.Sprintf("%s=%d", op, counts[op])
	}
	return strings.Join(ops, " ")
}
