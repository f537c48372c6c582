package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var getRefresh bool

var getCmd = &cobra.Command{
	Use:   "get <identifier>",
	Short: "Look up a single record by identifier",
	Long: `Look up one record by its provider-native identifier: a DOI for
Crossref, an EID for Scopus. Lookups are cached like searches.`,
	Example: `  bibfetch get 10.1038/nature14539
  bibfetch -p scopus get 2-s2.0-84924051598`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().BoolVar(&getRefresh, "refresh", false, "bypass the cache and re-fetch")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	f, err := a.fetcher()
	if err != nil {
		return err
	}

	record, err := f.FetchRecord(cmd.Context(), args[0], getRefresh)
	if err != nil {
		return err
	}

	var pretty json.RawMessage = record
	indented, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(indented))
	return nil
}
