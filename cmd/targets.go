package cmd

import (
	"fmt"
	"time"

	pducycle "github.com/bikeshack/pducycle/internal"
	"github.com/bikeshack/pducycle/pkg/pdu"
	"github.com/bikeshack/pducycle/pkg/probe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// addTargetFlags registers the PDU/node target flags shared by the
// cycle, status, and power commands. The viper keys are namespaced per
// command (cycle.pdu, status.pdu, ...) so one command's untouched flags
// never shadow another's.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("pdu", "", "Set the PDU management address (scheme optional, defaults to http)")
	cmd.Flags().IntP("dialect", "d", 0, "Set the PDU command dialect (0 = vendor A, 1 = vendor B/inverted)")
	cmd.Flags().String("ports", "", "Set the managed port indices, comma-separated (defaults to all 8)")
	cmd.Flags().String("pdu-username", "", "Set the PDU username")
	cmd.Flags().String("pdu-password", "", "Set the PDU password")
	cmd.Flags().StringP("nodes-file", "f", "", "Set the path to the node list (one management address per line)")
	cmd.Flags().StringP("username", "u", "", "Set the node management username")
	cmd.Flags().StringP("password", "p", "", "Set the node management password")
	cmd.Flags().Int("bmc-port", probe.REDFISH_PORT, "Set the node management port")
	cmd.Flags().BoolP("insecure", "i", false, "Ignore SSL errors")
	cmd.Flags().String("cacert", "", "Set the path to CA cert file (defaults to system CAs when blank)")

	for _, flag := range []string{
		"pdu", "dialect", "ports", "pdu-username", "pdu-password",
		"nodes-file", "username", "password", "bmc-port", "insecure", "cacert",
	} {
		checkBindFlagError(viper.BindPFlag(cmd.Name()+"."+flag, cmd.Flags().Lookup(flag)))
	}
}

// buildPDUTarget validates the PDU inputs under the command's viper
// namespace and assembles the dialect driver and managed port set.
func buildPDUTarget(prefix string) (pdu.Driver, []int, error) {
	host := viper.GetString(prefix + ".pdu")
	if host == "" {
		return nil, nil, fmt.Errorf("no PDU address provided (see --pdu)")
	}
	dialect, err := pdu.ParseDialect(viper.GetInt(prefix + ".dialect"))
	if err != nil {
		return nil, nil, err
	}
	ports, err := pdu.ParsePorts(viper.GetString(prefix + ".ports"))
	if err != nil {
		return nil, nil, err
	}
	driver := pdu.NewDriver(pdu.Config{
		Host:     host,
		Dialect:  dialect,
		Username: viper.GetString(prefix + ".pdu-username"),
		Password: viper.GetString(prefix + ".pdu-password"),
		Timeout:  time.Second * time.Duration(viper.GetInt("timeout")),
		Insecure: viper.GetBool(prefix + ".insecure"),
	})
	return driver, ports, nil
}

// buildTargets validates the CLI inputs and assembles the PDU driver,
// node prober, node list, and port set for a run.
func buildTargets(prefix string) (pdu.Driver, *probe.Prober, []probe.Node, []int, error) {
	driver, ports, err := buildPDUTarget(prefix)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	nodesFile := viper.GetString(prefix + ".nodes-file")
	if nodesFile == "" {
		return nil, nil, nil, nil, fmt.Errorf("no node list provided (see --nodes-file)")
	}
	nodes, err := pducycle.ParseNodeFile(nodesFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	prober := probe.NewProber(probe.QueryParams{
		Port:          viper.GetInt(prefix + ".bmc-port"),
		User:          viper.GetString(prefix + ".username"),
		Pass:          viper.GetString(prefix + ".password"),
		Timeout:       viper.GetInt("timeout"),
		WithSecureTLS: !viper.GetBool(prefix + ".insecure"),
		CertPoolFile:  viper.GetString(prefix + ".cacert"),
	}, logrus.New())

	return driver, prober, nodes, ports, nil
}
