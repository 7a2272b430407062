package pducycle

import (
	"context"
	"sync"

	"github.com/bikeshack/pducycle/pkg/pdu"
	"github.com/bikeshack/pducycle/pkg/probe"
	"github.com/rs/zerolog/log"
)

// PortReport is the observed state of one managed PDU port.
type PortReport struct {
	Port  int    `json:"port"`
	State string `json:"state"`
}

// NodeReport is the observed state of one node's management endpoint.
type NodeReport struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Reachable bool   `json:"reachable"`
	Power     string `json:"power"`
}

// GatherReport takes a one-shot reading of every managed port and every
// node. Ports are read sequentially (one PDU, cheap queries); node
// queries fan out over a bounded worker pool since each one opens a
// management session.
func GatherReport(ctx context.Context, driver pdu.Driver, prober NodeProber, nodes []probe.Node, ports []int, workers int) ([]PortReport, []NodeReport) {
	portReports := make([]PortReport, 0, len(ports))
	for _, port := range ports {
		report := PortReport{Port: port, State: "unknown"}
		state, err := driver.GetPort(ctx, port)
		if err != nil {
			log.Error().Err(err).Msgf("failed to query port %d", port)
		} else {
			report.State = state.String()
		}
		portReports = append(portReports, report)
	}

	if workers < 1 {
		workers = 1
	}
	nodeChannel := make(chan int, workers+1)
	nodeReports := make([]NodeReport, len(nodes))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			for {
				idx, ok := <-nodeChannel
				if !ok {
					wg.Done()
					return
				}
				node := nodes[idx]
				report := NodeReport{Name: node.Name, Host: node.Host, Power: probe.StateUnknown.String()}
				report.Reachable = prober.IsReachable(node)
				if report.Reachable {
					report.Power = prober.PowerState(ctx, node).String()
				}
				nodeReports[idx] = report
			}
		}()
	}
	for i := range nodes {
		nodeChannel <- i
	}
	close(nodeChannel)
	wg.Wait()

	return portReports, nodeReports
}
