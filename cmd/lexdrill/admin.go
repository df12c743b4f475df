package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/importer"
)

var flushCmd = &cobra.Command{
	Use:   "flush <user>",
	Short: "Commit a learner's pending session windows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sessions.Flush(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Flushed %s:\n", args[0])
		fmt.Printf("  Committed: %d\n", res.Flushed)
		fmt.Printf("  Skipped:   %d\n", res.Skipped)
		fmt.Printf("  Stale:     %d\n", res.Stale)
		fmt.Printf("  Failed:    %d\n", res.Failed)
		return nil
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Inspect or clear a learner's drill inventory",
}

var inventoryStatsCmd = &cobra.Command{
	Use:   "stats <user>",
	Short: "Show cached drill counts per mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.inventory.Stats(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		modes := make([]string, 0, len(stats))
		total := 0
		for m, n := range stats {
			modes = append(modes, string(m))
			total += n
		}
		sort.Strings(modes)

		fmt.Printf("Inventory for %s:\n", args[0])
		for _, m := range modes {
			fmt.Printf("  %-8s %d / %d\n", m, stats[domain.Mode(m)], a.inventory.Capacity(domain.Mode(m)))
		}
		fmt.Printf("  Total:   %d\n", total)
		return nil
	},
}

var clearMode string

var inventoryClearCmd = &cobra.Command{
	Use:   "clear <user>",
	Short: "Delete cached drills of a learner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var mode domain.Mode
		if clearMode != "" {
			mode = domain.Mode(clearMode)
			if !mode.Valid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidMode, clearMode)
			}
		}

		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		var n int
		if mode == "" {
			n, err = a.inventory.ClearAll(cmd.Context(), args[0])
		} else {
			n, err = a.inventory.ClearMode(cmd.Context(), args[0], mode)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d drill lists for %s\n", n, args[0])
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage learning items",
}

var importSheet string

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import learning items from a .json, .csv or .xlsx file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := importer.Load(args[0], importer.Options{SheetName: importSheet})
		if err != nil {
			return err
		}
		for _, e := range res.Errors {
			fmt.Printf("  skipped %s\n", e)
		}
		if len(res.Items) == 0 {
			fmt.Printf("No items to import from %s\n", args[0])
			return nil
		}

		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.catalog.Upsert(cmd.Context(), res.Items)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d items from %s (%d skipped)\n", n, args[0], res.Skipped)
		return nil
	},
}

func init() {
	inventoryClearCmd.Flags().StringVar(&clearMode, "mode", "", "Only clear one mode (SYNTAX, PHRASE, BLITZ)")
	inventoryCmd.AddCommand(inventoryStatsCmd, inventoryClearCmd)
	catalogImportCmd.Flags().StringVar(&importSheet, "sheet", "", "Excel sheet name (default: first sheet)")
	catalogCmd.AddCommand(catalogImportCmd)
}
