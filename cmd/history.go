package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/bikeshack/pducycle/internal/cache/sqlite"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The `history` command lists completed cycles from the history cache
// mirrored by previous runs.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed power cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		history := sqlite.NewHistory(viper.GetString("history"))
		records, err := history.GetCycleRecords()
		if err != nil {
			log.Error().Err(err).Msg("failed to read cycle history")
			return errors.New("failed to read cycle history")
		}
		for _, rec := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%s #%d\n", rec.Timestamp.Format(time.RFC3339), rec.Cycle)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
