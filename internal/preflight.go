package pducycle

import (
	"context"
	"fmt"

	"github.com/bikeshack/pducycle/internal/util"
	"github.com/bikeshack/pducycle/pkg/pdu"
	"github.com/bikeshack/pducycle/pkg/probe"
	"github.com/rs/zerolog/log"
)

// Preflight verifies the run can start at all: the PDU answers a status
// query on every managed port and every node's management endpoint is
// reachable. Node failures are collected so the operator sees the whole
// list, not just the first offender. Any failure here is fatal; no cycle
// is ever started against a partially validated setup.
func Preflight(ctx context.Context, driver pdu.Driver, prober NodeProber, nodes []probe.Node, ports []int) error {
	for _, port := range ports {
		if _, err := driver.GetPort(ctx, port); err != nil {
			return fmt.Errorf("pdu unreachable: %v", err)
		}
	}
	log.Info().Msgf("pdu answered status queries for all %d managed ports", len(ports))

	errList := []error{}
	for _, node := range nodes {
		if !prober.IsReachable(node) {
			errList = append(errList, fmt.Errorf("node %s (%s) is unreachable", node.Name, node.Host))
		}
	}
	if util.HasErrors(errList) {
		return fmt.Errorf("%d of %d nodes failed reachability:\n%v",
			len(errList), len(nodes), util.FormatErrorList(errList))
	}
	log.Info().Msgf("all %d nodes reachable", len(nodes))
	return nil
}
