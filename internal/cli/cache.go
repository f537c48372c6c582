package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bibfetch/bibfetch/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the on-disk result cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached entries for a provider",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete one cached entry by key",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheDelete,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge-capped",
	Short: "Remove entries whose declared total exceeds the current cap",
	Long: `Remove cached entries recording a truncated fetch: entries whose
declared result total exceeds the currently configured per-query cap.
Run this after raising the cap so the affected queries re-fetch
completely instead of being served truncated results forever.`,
	Args: cobra.NoArgs,
	RunE: runCachePurge,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	f, err := a.fetcher()
	if err != nil {
		return err
	}

	infos, err := f.Store().Keys()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), output.FormatKeys(infos))
	return nil
}

func runCacheDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	f, err := a.fetcher()
	if err != nil {
		return err
	}

	if err := f.Store().Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	f, err := a.fetcher()
	if err != nil {
		return err
	}

	purged, err := f.PurgeExceededCap()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries (cap %d)\n", purged, f.MaxResults())
	return nil
}
