// The ledger package keeps the append-only record of completed power
// cycles. Each completed cycle appends one line of the form
//
//	<timestamp> #<cycle_number>
//
// and a restarted run resumes numbering from the last line.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger is a handle to the cycle record file. The file is opened per
// operation so a crash mid-cycle never holds it open.
type Ledger struct {
	path string
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Path() string {
	return l.path
}

// LastCycle returns the cycle number recorded on the last line, or 0 when
// the ledger does not exist yet or its last line carries no usable
// number. The orchestrator increments before use, so numbering is
// 1-based and monotonic across restarts.
func (l *Ledger) LastCycle() (int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open ledger: %v", err)
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read ledger: %v", err)
	}
	return parseCycleNumber(last), nil
}

// Append records one completed cycle.
func (l *Ledger) Append(timestamp time.Time, cycle int) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %v", err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s #%d\n", timestamp.Format(time.RFC3339), cycle)
	if err != nil {
		return fmt.Errorf("failed to append to ledger: %v", err)
	}
	return nil
}

// parseCycleNumber extracts the '#<n>' field from a ledger line. Only the
// last field is inspected; anything unparsable counts as 0.
func parseCycleNumber(line string) int {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	last := fields[len(fields)-1]
	if !strings.HasPrefix(last, "#") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(last, "#"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
