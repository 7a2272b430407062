package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/bikeshack/pducycle/pkg/pdu"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// The `power` command manually switches the managed ports without
// running the cycle loop, e.g. to restore power after an aborted run.
var powerCmd = &cobra.Command{
	Use:       "power (on|off)",
	ValidArgs: []string{"on", "off"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Example: `  pducycle power off --pdu 10.0.0.5
  pducycle power on --pdu 10.0.0.5 -d 1 --ports 1,2,5`,
	Short: "Manually switch the managed PDU ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		state := pdu.StateOff
		if args[0] == "on" {
			state = pdu.StateOn
		}

		driver, ports, err := buildPDUTarget(cmd.Name())
		if err != nil {
			log.Error().Err(err).Msg("invalid power targets")
			return errors.New("invalid power targets")
		}

		ctx := context.Background()
		failed := 0
		for _, port := range ports {
			if err := driver.SetPort(ctx, port, state); err != nil {
				log.Error().Err(err).Msgf("failed to switch port %d %v", port, state)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "port %d:\t%s\n", port, state)
		}
		if failed > 0 {
			return fmt.Errorf("failed to switch %d of %d ports", failed, len(ports))
		}
		return nil
	},
}

func init() {
	addTargetFlags(powerCmd)
	rootCmd.AddCommand(powerCmd)
}
