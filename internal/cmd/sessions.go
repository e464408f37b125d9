package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rand/rlm/internal/repl"
	"github.com/rand/rlm/internal/trajectory"
)

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.List(cmd.Context(), 20)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions stored")
				return nil
			}
			for _, r := range recs {
				status := "exhausted"
				if r.Success {
					status = "ok"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s  %2d iters  $%.4f  %s\n",
					r.CreatedAt.Format("2006-01-02 15:04"), status, r.Iterations, r.TotalCost, firstLine(r.Query))
				fmt.Fprintf(cmd.OutOrStdout(), "  id: %s\n", r.ID)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session's trajectory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Query: %s\nAnswer: %s\nSuccess: %v (%d iterations, $%.4f)\n\n",
				rec.Query, rec.Answer, rec.Success, rec.Iterations, rec.TotalCost)
			for _, st := range rec.Steps {
				fmt.Fprintf(out, "--- turn %d (%s)\n", st.Iteration, st.Type)
				if st.Code != "" {
					fmt.Fprintln(out, st.Code)
				}
				if st.Output != "" {
					fmt.Fprintln(out, repl.TruncateMiddle(st.Output, 2000))
				}
				if st.Error != "" {
					fmt.Fprintf(out, "error: %s\n", st.Error)
				}
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func openStore(flags *rootFlags) (*trajectory.Store, error) {
	if flags.storePath == "" {
		return nil, fmt.Errorf("--store is required for session commands")
	}
	return trajectory.NewStore(trajectory.StoreConfig{Path: flags.storePath})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
