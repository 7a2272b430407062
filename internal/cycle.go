// Package pducycle implements the API behind the CLI commands. The main
// entry point is Cycler.Run(), the power-cycling state machine that
// drives a whole chassis of nodes through repeated AC off/on cycles.
package pducycle

import (
	"context"
	"fmt"
	"time"

	"github.com/bikeshack/pducycle/pkg/ledger"
	"github.com/bikeshack/pducycle/pkg/pdu"
	"github.com/bikeshack/pducycle/pkg/poll"
	"github.com/bikeshack/pducycle/pkg/probe"
	"github.com/rs/zerolog/log"
)

// NodeProber is the part of the probe.Prober surface the orchestrator
// needs; tests substitute fakes.
type NodeProber interface {
	IsReachable(node probe.Node) bool
	PowerState(ctx context.Context, node probe.Node) probe.State
}

// Timings collects every fixed delay and attempt budget in one place.
// Production runs use DefaultTimings(); tests inject near-zero delays.
type Timings struct {
	// waiting for all nodes to report power off
	NodePollInterval time.Duration
	NodeOffAttempts  int
	// per-node reachability sub-retry inside the off wait
	ReachSubAttempts int
	// per-node reachability wait after power-on
	ReachAttempts int
	// off confirmation: settle after the command, delay between
	// re-checks, attempt budget
	OffSettle   time.Duration
	OffDelay    time.Duration
	OffAttempts int
	// on confirmation
	OnSettle   time.Duration
	OnDelay    time.Duration
	OnAttempts int
	// chassis discharge pause between confirmed-off and power-on
	Cooldown time.Duration
	// management firmware boot pause after confirmed-on
	Warmup time.Duration
	// pause between a node turning reachable and its power-state check
	VerifySettle time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		NodePollInterval: time.Second,
		NodeOffAttempts:  1800,
		ReachSubAttempts: 15,
		ReachAttempts:    1800,
		OffSettle:        10 * time.Second,
		OffDelay:         10 * time.Second,
		OffAttempts:      30,
		OnSettle:         5 * time.Second,
		OnDelay:          5 * time.Second,
		OnAttempts:       10,
		Cooldown:         30 * time.Second,
		Warmup:           120 * time.Second,
		VerifySettle:     5 * time.Second,
	}
}

// HistoryWriter mirrors completed cycles into the history cache. It is
// optional; a nil writer disables the mirror.
type HistoryWriter interface {
	InsertCycleRecord(rec CycleRecord) error
}

// CycleRecord is one completed off→on traversal of the whole chassis.
type CycleRecord struct {
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Cycle     int       `db:"cycle" json:"cycle"`
}

// Cycler owns one run of the power-cycling loop. Exactly one Cycler
// drives the PDU and nodes; it never overlaps port mutations of
// different target states.
type Cycler struct {
	Driver  pdu.Driver
	Prober  NodeProber
	Nodes   []probe.Node
	Ports   []int
	Ledger  *ledger.Ledger
	History HistoryWriter
	Timings Timings
	Status  *StatusBoard
	// MaxCycles bounds the loop for soak tests; 0 cycles forever.
	MaxCycles int
}

// Run resumes cycle numbering from the ledger and loops the state
// machine until a stage fails its attempt budget (returned as an error;
// the caller exits the process) or MaxCycles completes.
func (c *Cycler) Run(ctx context.Context) error {
	if c.Status == nil {
		c.Status = NewStatusBoard()
	}
	last, err := c.Ledger.LastCycle()
	if err != nil {
		return fmt.Errorf("failed to read ledger: %v", err)
	}
	if last > 0 {
		log.Info().Msgf("resuming cycle numbering after cycle #%d", last)
	}

	completed := 0
	for cycle := last + 1; ; cycle++ {
		log.Info().Msgf("starting cycle #%d (%d nodes, %d ports)", cycle, len(c.Nodes), len(c.Ports))
		if err := c.runCycle(ctx, cycle); err != nil {
			c.Status.Set("failed", cycle, 0, 0)
			return fmt.Errorf("cycle #%d failed: %v", cycle, err)
		}

		now := time.Now()
		if err := c.Ledger.Append(now, cycle); err != nil {
			return fmt.Errorf("cycle #%d completed but could not be recorded: %v", cycle, err)
		}
		if c.History != nil {
			if err := c.History.InsertCycleRecord(CycleRecord{Timestamp: now, Cycle: cycle}); err != nil {
				log.Warn().Err(err).Msg("failed to mirror cycle record into history cache")
			}
		}
		log.Info().Msgf("completed cycle #%d", cycle)

		completed++
		if c.MaxCycles > 0 && completed >= c.MaxCycles {
			c.Status.Set("done", cycle, 0, 0)
			log.Info().Msgf("reached cycle bound of %d, stopping", c.MaxCycles)
			return nil
		}
	}
}

// runCycle walks one traversal of the state machine:
// WaitAllOff → PowerOffPorts → ConfirmOff → CooldownDelay → PowerOnPorts
// → ConfirmOn → WarmupDelay → WaitReachable → VerifyOn.
func (c *Cycler) runCycle(ctx context.Context, cycle int) error {
	if err := c.waitAllOff(ctx, cycle); err != nil {
		return err
	}

	c.Status.Set("power-off-ports", cycle, 0, len(c.Ports))
	log.Info().Msgf("powering off %d ports", len(c.Ports))
	c.setAllPorts(ctx, pdu.StateOff)
	if err := c.confirmPorts(ctx, cycle, pdu.StateOff); err != nil {
		return err
	}

	c.Status.Set("cooldown", cycle, 0, 0)
	log.Info().Msgf("cooling down for %v before re-energizing", c.Timings.Cooldown)
	time.Sleep(c.Timings.Cooldown)

	c.Status.Set("power-on-ports", cycle, 0, len(c.Ports))
	log.Info().Msgf("powering on %d ports", len(c.Ports))
	c.setAllPorts(ctx, pdu.StateOn)
	if err := c.confirmPorts(ctx, cycle, pdu.StateOn); err != nil {
		return err
	}

	c.Status.Set("warmup", cycle, 0, 0)
	log.Info().Msgf("waiting %v for management firmware boot", c.Timings.Warmup)
	time.Sleep(c.Timings.Warmup)

	return c.waitNodesUp(ctx, cycle)
}

// waitAllOff blocks until every node reports power off. A node only
// counts once its management endpoint answers the reachability sub-retry
// and reports off; an unreachable node is "not yet off", with the outer
// attempt budget as the only backstop.
func (c *Cycler) waitAllOff(ctx context.Context, cycle int) error {
	c.Status.Set("wait-all-off", cycle, 0, len(c.Nodes))
	log.Info().Msgf("waiting for all %d nodes to power off", len(c.Nodes))
	_, err := poll.Until(func() (int, int) {
		off := 0
		for _, node := range c.Nodes {
			if !c.waitReachable(node, c.Timings.ReachSubAttempts) {
				continue
			}
			if c.Prober.PowerState(ctx, node) == probe.StateOff {
				off++
			}
		}
		c.Status.Set("wait-all-off", cycle, off, len(c.Nodes))
		return off, len(c.Nodes)
	}, poll.Options{
		Delay:       c.Timings.NodePollInterval,
		MaxAttempts: c.Timings.NodeOffAttempts,
	})
	if err != nil {
		terr := err.(*poll.ThresholdError)
		return fmt.Errorf("%d of %d nodes never reported off, possible stuck nodes: %v",
			terr.Required-terr.Satisfied, terr.Required, err)
	}
	return nil
}

// setAllPorts issues the power command to every managed port. Command
// errors are absorbed here; the confirmation poll either sees the port
// reach the target state or burns through its attempt budget.
func (c *Cycler) setAllPorts(ctx context.Context, state pdu.PortState) {
	for _, port := range c.Ports {
		if err := c.Driver.SetPort(ctx, port, state); err != nil {
			log.Warn().Err(err).Msgf("failed to set port %d %v", port, state)
		}
	}
}

// confirmPorts polls until every managed port reads back in the target
// state. The corrective action resends the command to all managed ports,
// not just the laggards; that is the retry traffic the chassis expects.
func (c *Cycler) confirmPorts(ctx context.Context, cycle int, state pdu.PortState) error {
	var (
		settle   time.Duration
		delay    time.Duration
		attempts int
	)
	if state == pdu.StateOff {
		settle, delay, attempts = c.Timings.OffSettle, c.Timings.OffDelay, c.Timings.OffAttempts
	} else {
		settle, delay, attempts = c.Timings.OnSettle, c.Timings.OnDelay, c.Timings.OnAttempts
	}

	stage := fmt.Sprintf("confirm-%v", state)
	c.Status.Set(stage, cycle, 0, len(c.Ports))
	_, err := poll.Until(func() (int, int) {
		confirmed := 0
		for _, port := range c.Ports {
			got, err := c.Driver.GetPort(ctx, port)
			if err != nil {
				// slow or flaky PDU command; absorbed by the budget
				log.Debug().Err(err).Msgf("status query failed for port %d", port)
				continue
			}
			if got == state {
				confirmed++
			}
		}
		c.Status.Set(stage, cycle, confirmed, len(c.Ports))
		return confirmed, len(c.Ports)
	}, poll.Options{
		WarmUp:      settle,
		Delay:       delay,
		MaxAttempts: attempts,
		Correct:     func() { c.setAllPorts(ctx, state) },
	})
	if err != nil {
		return fmt.Errorf("ports never confirmed %v: %v", state, err)
	}
	log.Info().Msgf("all %d ports confirmed %v", len(c.Ports), state)
	return nil
}

// waitNodesUp walks the nodes in input order: wait for reachability,
// settle, then verify the node reports power on. The first node that
// never turns reachable aborts the cycle; a reachable node stuck off is
// recorded and checking continues so the report covers every node.
func (c *Cycler) waitNodesUp(ctx context.Context, cycle int) error {
	stuck := []string{}
	for i, node := range c.Nodes {
		c.Status.Set("wait-reachable", cycle, i, len(c.Nodes))
		log.Info().Msgf("waiting for node %s (%s) to become reachable", node.Name, node.Host)
		if !c.waitReachable(node, c.Timings.ReachAttempts) {
			return fmt.Errorf("node %s (%s) never became reachable after power-on", node.Name, node.Host)
		}
		time.Sleep(c.Timings.VerifySettle)
		if state := c.Prober.PowerState(ctx, node); state != probe.StateOn {
			log.Error().Msgf("node %s is reachable but reports power state %v", node.Name, state)
			stuck = append(stuck, node.Name)
		}
	}
	if len(stuck) > 0 {
		return fmt.Errorf("%d of %d nodes failed to report on: %v", len(stuck), len(c.Nodes), stuck)
	}
	return nil
}

// waitReachable polls a single node's reachability with a bounded
// attempt budget at the node poll interval.
func (c *Cycler) waitReachable(node probe.Node, attempts int) bool {
	_, err := poll.Until(func() (int, int) {
		if c.Prober.IsReachable(node) {
			return 1, 1
		}
		return 0, 1
	}, poll.Options{
		Delay:       c.Timings.NodePollInterval,
		MaxAttempts: attempts,
	})
	return err == nil
}
