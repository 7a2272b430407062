package cmd

import (
	"context"
	"errors"
	"fmt"

	pducycle "github.com/bikeshack/pducycle/internal"
	"github.com/cznic/mathutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// The `status` command takes a one-shot reading of every managed port
// and node without mutating anything. Useful before starting a run or
// after a failed one.
var statusCmd = &cobra.Command{
	Use: "status",
	Example: `  pducycle status --pdu 10.0.0.5 -f nodes.txt -u USER -p PASS
  pducycle status --pdu 10.0.0.5 -d 1 --ports 1,2,5 -f nodes.txt`,
	Short: "Report current PDU port and node power states",
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, prober, nodes, ports, err := buildTargets(cmd.Name())
		if err != nil {
			log.Error().Err(err).Msg("invalid status targets")
			return errors.New("invalid status targets")
		}

		// one worker per node, within reason
		workers := viper.GetInt("concurrency")
		if workers <= 0 {
			workers = mathutil.Clamp(len(nodes), 1, 255)
		}

		portReports, nodeReports := pducycle.GatherReport(context.Background(), driver, prober, nodes, ports, workers)
		for _, r := range portReports {
			fmt.Fprintf(cmd.OutOrStdout(), "port %d:\t%s\n", r.Port, r.State)
		}
		for _, r := range nodeReports {
			reach := "unreachable"
			if r.Reachable {
				reach = "reachable"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s):\t%s\t%s\n", r.Name, r.Host, reach, r.Power)
		}
		return nil
	},
}

func init() {
	addTargetFlags(statusCmd)
	statusCmd.Flags().IntP("concurrency", "j", -1, "Set the number of concurrent node queries")
	checkBindFlagError(viper.BindPFlag("concurrency", statusCmd.Flags().Lookup("concurrency")))

	rootCmd.AddCommand(statusCmd)
}
