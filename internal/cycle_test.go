package pducycle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bikeshack/pducycle/pkg/ledger"
	"github.com/bikeshack/pducycle/pkg/pdu"
	"github.com/bikeshack/pducycle/pkg/probe"
)

// fakeDriver keeps port states in memory and counts set calls.
type fakeDriver struct {
	mu       sync.Mutex
	states   map[int]pdu.PortState
	setCalls int
	offEpoch int
	// stuckOn forces every status read to report on, so an off
	// confirmation can never succeed
	stuckOn bool
}

func newFakeDriver(ports []int) *fakeDriver {
	states := make(map[int]pdu.PortState, len(ports))
	for _, p := range ports {
		states[p] = pdu.StateOff
	}
	return &fakeDriver{states: states}
}

func (d *fakeDriver) SetPort(ctx context.Context, port int, state pdu.PortState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setCalls++
	if state == pdu.StateOff {
		d.offEpoch++
	}
	d.states[port] = state
	return nil
}

func (d *fakeDriver) offEpochCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offEpoch
}

func (d *fakeDriver) GetPort(ctx context.Context, port int) (pdu.PortState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stuckOn {
		return pdu.StateOn, nil
	}
	return d.states[port], nil
}

func (d *fakeDriver) allOn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.states {
		if s != pdu.StateOn {
			return false
		}
	}
	return true
}

// fakeProber simulates nodes that follow AC power: off while any port is
// off, on once all ports are energized, and soft-off again after every
// node has answered its verification query (the behavior that lets the
// next cycle's off wait proceed).
type fakeProber struct {
	driver       *fakeDriver
	nodes        int
	onAnswers    int
	lastOffEpoch int
	unreachable  map[string]bool
	// vanishOnPowerUp marks nodes whose management endpoint never comes
	// back after the ports are energized
	vanishOnPowerUp map[string]bool
	// reachAfter makes a node unreachable for its first N reachability
	// checks, simulating a slow management endpoint
	reachAfter map[string]int
	reachCalls map[string]int
}

func (p *fakeProber) IsReachable(node probe.Node) bool {
	if p.vanishOnPowerUp[node.Name] && p.driver.allOn() {
		return false
	}
	if n := p.reachAfter[node.Name]; n > 0 {
		p.reachCalls[node.Name]++
		if p.reachCalls[node.Name] <= n {
			return false
		}
	}
	return !p.unreachable[node.Name]
}

func (p *fakeProber) PowerState(ctx context.Context, node probe.Node) probe.State {
	if p.unreachable[node.Name] {
		return probe.StateUnknown
	}
	// losing AC resets which nodes have answered their verification
	if epoch := p.driver.offEpochCount(); epoch != p.lastOffEpoch {
		p.lastOffEpoch = epoch
		p.onAnswers = 0
	}
	if !p.driver.allOn() {
		return probe.StateOff
	}
	if p.onAnswers >= p.nodes {
		return probe.StateOff
	}
	p.onAnswers++
	return probe.StateOn
}

// recordingHistory captures mirrored cycle records.
type recordingHistory struct {
	records []CycleRecord
}

func (h *recordingHistory) InsertCycleRecord(rec CycleRecord) error {
	h.records = append(h.records, rec)
	return nil
}

func testTimings() Timings {
	t := DefaultTimings()
	t.NodePollInterval = time.Millisecond
	t.OffSettle = 0
	t.OffDelay = time.Millisecond
	t.OnSettle = 0
	t.OnDelay = time.Millisecond
	t.Cooldown = 0
	t.Warmup = 0
	t.VerifySettle = 0
	return t
}

func testNodes() []probe.Node {
	return []probe.Node{
		{Name: "n0", Host: "10.0.0.10"},
		{Name: "n1", Host: "10.0.0.11"},
	}
}

func TestRunCompletesCycles(t *testing.T) {
	ports, _ := pdu.ParsePorts("")
	driver := newFakeDriver(ports)
	prober := &fakeProber{driver: driver, nodes: 2, unreachable: map[string]bool{}}
	history := &recordingHistory{}
	ledgerPath := filepath.Join(t.TempDir(), "cycles.log")

	c := &Cycler{
		Driver:    driver,
		Prober:    prober,
		Nodes:     testNodes(),
		Ports:     ports,
		Ledger:    ledger.New(ledgerPath),
		History:   history,
		Timings:   testTimings(),
		MaxCycles: 2,
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected bounded run to succeed, got %v", err)
	}

	b, err := os.ReadFile(ledgerPath)
	if err != nil {
		t.Fatalf("failed to read ledger: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected exactly 2 ledger lines, got %d: %v", len(lines), lines)
	}
	if !strings.HasSuffix(lines[0], "#1") || !strings.HasSuffix(lines[1], "#2") {
		t.Errorf("expected cycles #1 and #2, got %v", lines)
	}
	if len(history.records) != 2 || history.records[0].Cycle != 1 || history.records[1].Cycle != 2 {
		t.Errorf("expected history records for cycles 1 and 2, got %+v", history.records)
	}
}

func TestRunResumesNumberingFromLedger(t *testing.T) {
	ports, _ := pdu.ParsePorts("1,2")
	driver := newFakeDriver(ports)
	prober := &fakeProber{driver: driver, nodes: 2, unreachable: map[string]bool{}}
	ledgerPath := filepath.Join(t.TempDir(), "cycles.log")

	l := ledger.New(ledgerPath)
	if err := l.Append(time.Now(), 41); err != nil {
		t.Fatalf("failed to seed ledger: %v", err)
	}

	c := &Cycler{
		Driver:    driver,
		Prober:    prober,
		Nodes:     testNodes(),
		Ports:     ports,
		Ledger:    l,
		Timings:   testTimings(),
		MaxCycles: 1,
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to succeed, got %v", err)
	}

	n, err := l.LastCycle()
	if err != nil {
		t.Fatalf("failed to read back ledger: %v", err)
	}
	if n != 42 {
		t.Errorf("expected resumed run to record cycle 42, got %d", n)
	}
}

func TestConfirmOffIdempotent(t *testing.T) {
	ports, _ := pdu.ParsePorts("")
	driver := newFakeDriver(ports) // all ports already off
	c := &Cycler{
		Driver:  driver,
		Ports:   ports,
		Timings: testTimings(),
		Status:  NewStatusBoard(),
	}
	if err := c.confirmPorts(context.Background(), 1, pdu.StateOff); err != nil {
		t.Fatalf("expected already-off confirmation to succeed, got %v", err)
	}
	if driver.setCalls != 0 {
		t.Errorf("expected zero corrective re-sends, got %d", driver.setCalls)
	}
}

func TestRunFailsWhenOffNeverConfirms(t *testing.T) {
	ports, _ := pdu.ParsePorts("")
	driver := newFakeDriver(ports)
	driver.stuckOn = true
	prober := &fakeProber{driver: driver, nodes: 2, unreachable: map[string]bool{}}
	ledgerPath := filepath.Join(t.TempDir(), "cycles.log")

	timings := testTimings()
	timings.NodeOffAttempts = 2
	timings.OffAttempts = 3

	c := &Cycler{
		Driver:  driver,
		Prober:  prober,
		Nodes:   testNodes(),
		Ports:   ports,
		Ledger:  ledger.New(ledgerPath),
		Timings: timings,
	}
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected run to fail when ports never confirm off")
	}
	if !strings.Contains(err.Error(), "threshold exceeded") {
		t.Errorf("expected threshold diagnostics in error, got %v", err)
	}

	// no ledger entry may exist for the failed cycle
	if _, statErr := os.Stat(ledgerPath); !os.IsNotExist(statErr) {
		b, _ := os.ReadFile(ledgerPath)
		if strings.TrimSpace(string(b)) != "" {
			t.Errorf("expected empty ledger after failed cycle, got %q", string(b))
		}
	}
}

func TestOffWaitToleratesSlowNodeEndpoint(t *testing.T) {
	ports, _ := pdu.ParsePorts("1,2")
	driver := newFakeDriver(ports)
	// n1's endpoint fails its first three reachability checks, one more
	// than a whole sub-retry budget, then answers and reports off
	prober := &fakeProber{
		driver:      driver,
		nodes:       2,
		unreachable: map[string]bool{},
		reachAfter:  map[string]int{"n1": 3},
		reachCalls:  map[string]int{},
	}
	ledgerPath := filepath.Join(t.TempDir(), "cycles.log")

	timings := testTimings()
	timings.ReachSubAttempts = 2
	timings.NodeOffAttempts = 5

	c := &Cycler{
		Driver:    driver,
		Prober:    prober,
		Nodes:     testNodes(),
		Ports:     ports,
		Ledger:    ledger.New(ledgerPath),
		Timings:   timings,
		MaxCycles: 1,
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("expected run to ride out the slow endpoint, got %v", err)
	}

	// the first off-wait round must have burned a whole sub-retry budget
	// on n1 without aborting, counting it as not yet off instead
	if prober.reachCalls["n1"] <= timings.ReachSubAttempts {
		t.Errorf("expected more than %d reachability checks against n1, got %d",
			timings.ReachSubAttempts, prober.reachCalls["n1"])
	}
	n, err := ledger.New(ledgerPath).LastCycle()
	if err != nil {
		t.Fatalf("failed to read back ledger: %v", err)
	}
	if n != 1 {
		t.Errorf("expected cycle 1 recorded, got %d", n)
	}
}

func TestRunFailsWhenNodeStaysUnreachable(t *testing.T) {
	ports, _ := pdu.ParsePorts("1")
	driver := newFakeDriver(ports)
	prober := &fakeProber{driver: driver, nodes: 2, unreachable: map[string]bool{}}
	ledgerPath := filepath.Join(t.TempDir(), "cycles.log")

	timings := testTimings()
	timings.ReachAttempts = 2
	timings.ReachSubAttempts = 1
	timings.NodeOffAttempts = 2

	c := &Cycler{
		Driver:  driver,
		Prober:  prober,
		Nodes:   testNodes(),
		Ports:   ports,
		Ledger:  ledger.New(ledgerPath),
		Timings: timings,
	}

	// n1 disappears once power is restored
	prober.vanishOnPowerUp = map[string]bool{"n1": true}

	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected run to fail when a node never becomes reachable")
	}
	if !strings.Contains(err.Error(), "never became reachable") {
		t.Errorf("expected reachability failure, got %v", err)
	}
}

func TestRunRecordsNodesStuckOff(t *testing.T) {
	ports, _ := pdu.ParsePorts("1")
	driver := newFakeDriver(ports)
	// only one on-answer is handed out, so the second node verifies as
	// still off while staying reachable
	prober := &fakeProber{driver: driver, nodes: 1, unreachable: map[string]bool{}}
	ledgerPath := filepath.Join(t.TempDir(), "cycles.log")

	timings := testTimings()
	timings.NodeOffAttempts = 2

	c := &Cycler{
		Driver:  driver,
		Prober:  prober,
		Nodes:   testNodes(),
		Ports:   ports,
		Ledger:  ledger.New(ledgerPath),
		Timings: timings,
	}
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("expected run to fail when a node stays off")
	}
	if !strings.Contains(err.Error(), "failed to report on") {
		t.Errorf("expected stuck-off diagnostics, got %v", err)
	}
	if !strings.Contains(err.Error(), "n1") {
		t.Errorf("expected stuck node named in error, got %v", err)
	}
}

func TestStatusBoardPublishesProgress(t *testing.T) {
	board := NewStatusBoard()
	board.Set("confirm-off", 3, 5, 8)
	s := board.Snapshot()
	if s.State != "confirm-off" || s.Cycle != 3 || s.Satisfied != 5 || s.Required != 8 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}
