package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newDiscoveryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discovery",
		Short: "Review terms the taxonomy does not know yet",
	}
	cmd.AddCommand(
		newDiscoveryListCmd(root),
		newDiscoveryApproveCmd(root),
		newDiscoveryIgnoreCmd(root),
	)
	return cmd
}

func newDiscoveryListCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending discoveries, most frequent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.engine.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(pending) > limit {
				pending = pending[:limit]
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COUNT\tTERM\tROLE\tLAST SEEN\tCONTEXT")
			for _, c := range pending {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					c.Count, c.Term, c.Role, c.LastSeen.Format("2006-01-02"), c.Context)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n terms")
	return cmd
}

func newDiscoveryApproveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve TERM [CANONICAL]",
		Short: "Promote a term into the taxonomy, optionally as an alias of CANONICAL",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			term, canonical := args[0], args[0]
			if len(args) == 2 {
				canonical = args[1]
			}
			if err := a.engine.Approve(cmd.Context(), term, canonical); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %q as %q\n", term, canonical)
			return nil
		},
	}
}

func newDiscoveryIgnoreCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ignore TERM",
		Short: "Suppress a term permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Ignore(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ignored %q\n", args[0])
			return nil
		},
	}
}

func openApp(cmd *cobra.Command, root *rootOptions) (*app, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg)
}
