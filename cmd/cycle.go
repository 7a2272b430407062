package cmd

import (
	"context"
	"errors"

	pducycle "github.com/bikeshack/pducycle/internal"
	"github.com/bikeshack/pducycle/internal/cache/sqlite"
	"github.com/bikeshack/pducycle/internal/daemon"
	"github.com/bikeshack/pducycle/pkg/ledger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The `cycle` command runs the power-cycling loop until a stage exhausts
// its attempt budget. There is no automatic recovery: a failed run exits
// and must be restarted by an operator after intervention.
var cycleCmd = &cobra.Command{
	Use: "cycle",
	Example: `  // cycle all 8 ports of a vendor A PDU forever
  pducycle cycle --pdu 10.0.0.5 -f nodes.txt -u USER -p PASS
  // explicit port subset on an inverted-dialect PDU, bounded soak run
  pducycle cycle --pdu 10.0.0.5 -d 1 --ports 1,2,5 -f nodes.txt --max-cycles 100
  // expose live progress while cycling
  pducycle cycle --pdu 10.0.0.5 -f nodes.txt --listen :8073`,
	Short: "Run the AC power-cycle stress loop",
	Long:  "Repeatedly powers the managed PDU ports off and on, confirming port state\nand node power state at every step and recording each completed cycle.",
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, prober, nodes, ports, err := buildTargets(cmd.Name())
		if err != nil {
			log.Error().Err(err).Msg("invalid cycle targets")
			return errors.New("invalid cycle targets")
		}

		ctx := context.Background()
		if err := pducycle.Preflight(ctx, driver, prober, nodes, ports); err != nil {
			log.Error().Err(err).Msg("pre-flight validation failed")
			return errors.New("pre-flight validation failed")
		}

		board := pducycle.NewStatusBoard()
		if endpoint := viper.GetString("cycle.listen"); endpoint != "" {
			go func() {
				if err := daemon.RunServer(endpoint, board); err != nil {
					log.Error().Err(err).Msg("status server stopped")
				}
			}()
		}

		cycler := &pducycle.Cycler{
			Driver:    driver,
			Prober:    prober,
			Nodes:     nodes,
			Ports:     ports,
			Ledger:    ledger.New(viper.GetString("cycle.ledger")),
			History:   sqlite.NewHistory(viper.GetString("history")),
			Timings:   pducycle.DefaultTimings(),
			Status:    board,
			MaxCycles: viper.GetInt("cycle.max-cycles"),
		}
		if err := cycler.Run(ctx); err != nil {
			// terminal failure state; operator intervention required
			log.Fatal().Err(err).Msg("power-cycle run aborted")
		}
		return nil
	},
}

func init() {
	addTargetFlags(cycleCmd)
	cycleCmd.Flags().String("ledger", "cycles.log", "Set the path of the completed-cycle ledger")
	cycleCmd.Flags().Int("max-cycles", 0, "Stop after this many completed cycles (0 = run forever)")
	cycleCmd.Flags().String("listen", "", "Serve live status JSON on this address while cycling")

	checkBindFlagError(viper.BindPFlag("cycle.ledger", cycleCmd.Flags().Lookup("ledger")))
	checkBindFlagError(viper.BindPFlag("cycle.max-cycles", cycleCmd.Flags().Lookup("max-cycles")))
	checkBindFlagError(viper.BindPFlag("cycle.listen", cycleCmd.Flags().Lookup("listen")))

	rootCmd.AddCommand(cycleCmd)
}
