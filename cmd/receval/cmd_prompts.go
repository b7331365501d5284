package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rushteam/receval/prompt"
)

func newPromptsCmd() *cobra.Command {
	var task, promptFile string
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "List prompt templates",
		Long: `Without --task, lists every task and its template count.
With --task, prints each template id and instruction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prompt.Default()
			if promptFile != "" {
				if err := reg.LoadFile(promptFile); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if task == "" {
				fmt.Fprintln(w, "TASK\tTEMPLATES")
				for _, t := range reg.Tasks() {
					ts, _ := reg.Templates(t)
					fmt.Fprintf(w, "%s\t%d\n", t, len(ts))
				}
				return w.Flush()
			}

			ts, err := reg.Templates(task)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tINSTRUCTION")
			for i, t := range ts {
				fmt.Fprintf(w, "%d\t%q\n", i, t.Instruction)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "task name (seqrec, itemsearch, fusionseqrec)")
	cmd.Flags().StringVar(&promptFile, "prompt_file", "", "extra prompt templates YAML")
	return cmd
}
