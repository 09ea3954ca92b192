package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jazzify/rhythmcore/internal/stage"
)

func init() {
	stagesCmd.AddCommand(stagesListCmd, stagesSeedCmd)
	rootCmd.AddCommand(stagesCmd)
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List or seed stage definitions",
}

var stagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		stages := stage.Catalogue()
		if dbPath != "" {
			store, db, err := openStore(ctx, newLogger())
			if err != nil {
				return err
			}
			defer db.Close()
			if stages, err = store.List(ctx); err != nil {
				return err
			}
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNUMBER\tNAME\tMODE\tBPM\tCHORDS")
		for _, st := range stages {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%d\n", st.ID, st.Number, st.Name, st.Mode, st.BPM, len(st.Chords()))
		}
		return tw.Flush()
	},
}

var stagesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the built-in stages that the database does not have yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		store, db, err := openStore(ctx, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		n, err := stage.Seed(ctx, store, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %d stage(s)\n", n)
		return nil
	},
}
