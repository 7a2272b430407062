// The pdu package implements the outlet-switching driver for the two
// supported PDU command dialects. Callers always reason in the logical
// {Off, On} port states; raw status codes never leave this package.
package pdu

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

const (
	// Every supported PDU exposes exactly 8 switchable outlets.
	MaxPorts = 8
)

// PortState is the logical state of a single PDU outlet.
type PortState int

const (
	StateOff PortState = iota
	StateOn
)

func (s PortState) String() string {
	if s == StateOn {
		return "on"
	}
	return "off"
}

// Dialect selects the vendor command/status encoding used to address a
// PDU. VendorA reports 0=off/1=on directly; VendorB inverts the codes.
type Dialect int

const (
	DialectVendorA Dialect = 0
	DialectVendorB Dialect = 1
)

func (d Dialect) String() string {
	switch d {
	case DialectVendorA:
		return "vendor-a"
	case DialectVendorB:
		return "vendor-b"
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// ParseDialect converts the numeric CLI selector into a Dialect.
func ParseDialect(v int) (Dialect, error) {
	switch Dialect(v) {
	case DialectVendorA, DialectVendorB:
		return Dialect(v), nil
	}
	return 0, fmt.Errorf("invalid dialect selector %d (expected 0 or 1)", v)
}

// rawCode maps a logical state to the dialect's wire encoding.
func (d Dialect) rawCode(s PortState) int {
	code := 0
	if s == StateOn {
		code = 1
	}
	if d == DialectVendorB {
		code = 1 - code
	}
	return code
}

// portState maps a dialect wire code back to the logical state.
func (d Dialect) portState(code int) (PortState, error) {
	if code != 0 && code != 1 {
		return StateOff, fmt.Errorf("unrecognized status code %d", code)
	}
	if d == DialectVendorB {
		code = 1 - code
	}
	if code == 1 {
		return StateOn, nil
	}
	return StateOff, nil
}

// ParsePorts converts a comma-separated list of outlet indices into an
// ordered, unique port set. An empty spec selects all 8 outlets.
func ParsePorts(spec string) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		ports := make([]int, 0, MaxPorts)
		for p := 1; p <= MaxPorts; p++ {
			ports = append(ports, p)
		}
		return ports, nil
	}
	ports := []int{}
	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid port '%s': %v", field, err)
		}
		if p < 1 || p > MaxPorts {
			return nil, fmt.Errorf("invalid port %d (expected 1-%d)", p, MaxPorts)
		}
		if slices.Contains(ports, p) {
			return nil, fmt.Errorf("duplicate port %d", p)
		}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("empty port list")
	}
	return ports, nil
}

// CommandError wraps a failed remote set/get call against the PDU. The
// poll engine treats it as "not yet satisfied" rather than fatal.
type CommandError struct {
	Host string
	Port int
	Op   string
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("pdu %s: %s outlet %d: %v", e.Host, e.Op, e.Port, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
