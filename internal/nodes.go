package pducycle

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Cray-HPE/hms-xname/xnames"
	"github.com/bikeshack/pducycle/pkg/probe"
)

// ParseNodeFile reads the node list: one management address per line, in
// the order the nodes should be reported. A line may optionally carry a
// name after the address; nodes without one get a generated xname so the
// progress output stays consistent with the rest of the cluster tooling.
// Blank lines and '#' comments are skipped.
func ParseNodeFile(path string) ([]probe.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open node file: %v", err)
	}
	defer f.Close()

	// generate custom xnames for unnamed nodes
	xname := xnames.Node{
		Cabinet:       1000,
		Chassis:       1,
		ComputeModule: 7,
		NodeBMC:       0,
		Node:          0,
	}

	nodes := []probe.Node{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		node := probe.Node{Host: fields[0]}
		if len(fields) > 1 {
			node.Name = fields[1]
		} else {
			xname.NodeBMC += 1
			node.Name = fmt.Sprintf("%v", xname)
		}
		nodes = append(nodes, node)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read node file: %v", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("node file %s contains no nodes", path)
	}
	return nodes, nil
}
