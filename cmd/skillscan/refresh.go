package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRefreshCmd(root *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the taxonomy snapshot and report which tier served it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)
			repo := newRepository(cfg, logger)

			refresh := repo.Refresh
			if force {
				refresh = repo.ForceRefresh
			}
			snap := refresh(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tRECORDS\tSKIPPED\tERROR")
			for _, at := range repo.Report() {
				errText := "-"
				if at.Err != nil {
					errText = at.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", at.Tier, at.Records, at.Skipped, errText)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nsnapshot: tier=%s entries=%d aliases=%d conflicts=%d built=%s\n",
				snap.Tier(), snap.Len(), snap.AliasCount(), len(snap.Conflicts()),
				snap.BuiltAt().Format("2006-01-02 15:04:05"))
			for _, c := range snap.Conflicts() {
				fmt.Fprintf(cmd.OutOrStdout(), "  level conflict: %q levels=%v domains=%v\n", c.Term, c.Levels, c.Domains)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore the cache max age")
	return cmd
}
