// The probe package determines node reachability and power state through
// each node's management controller. Reachability is a single TCP dial;
// power state goes through a bmclib client against the node's Redfish
// interface. Retrying either is the caller's job.
package probe

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	bmclib "github.com/bmc-toolbox/bmclib/v2"
	"github.com/go-logr/logr"
	"github.com/jacobweinstock/registrar"
	"github.com/sirupsen/logrus"
	"github.com/stmcginnis/gofish/redfish"
)

const (
	IPMI_PORT    = 623
	SSH_PORT     = 22
	TLS_PORT     = 443
	REDFISH_PORT = 443
)

// State is the observed power state of a node. Unknown means the node
// could not be reached or queried; callers treat it as "not yet" rather
// than as an error.
type State int

const (
	StateUnknown State = iota
	StateOff
	StateOn
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	}
	return "unknown"
}

// Node identifies one server's management endpoint. Name is only used
// for reporting.
type Node struct {
	Name string
	Host string
}

// QueryParams hold the shared connection settings for every node query.
type QueryParams struct {
	Port          int
	User          string
	Pass          string
	Drivers       []string
	Preferred     string
	Timeout       int
	WithSecureTLS bool
	CertPoolFile  string
}

// Prober issues the per-node reachability and power-state queries.
type Prober struct {
	params QueryParams
	// bmclib chatter goes to its own logger, separate from the
	// orchestrator's progress output
	log    *logrus.Logger
	bmcLog logr.Logger
}

func NewProber(params QueryParams, l *logrus.Logger) *Prober {
	if params.Port <= 0 {
		params.Port = REDFISH_PORT
	}
	if params.Timeout <= 0 {
		params.Timeout = 5
	}
	if len(params.Drivers) == 0 {
		params.Drivers = []string{"gofish", "redfish"}
	}
	if l == nil {
		l = logrus.New()
		l.SetLevel(logrus.WarnLevel)
	}
	return &Prober{
		params: params,
		log:    l,
		bmcLog: logr.Discard(),
	}
}

// IsReachable performs a single TCP reachability probe against the
// node's management port. No internal retry.
func (p *Prober) IsReachable(node Node) bool {
	timeout := time.Second * time.Duration(p.params.Timeout)
	addr := net.JoinHostPort(node.Host, fmt.Sprint(p.params.Port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// PowerState queries the node's management power status. It returns
// StateUnknown when the reachability probe fails or the query errors;
// Off/On are only reported with confirmed reachability.
func (p *Prober) PowerState(ctx context.Context, node Node) State {
	if !p.IsReachable(node) {
		return StateUnknown
	}
	client, err := p.newClient(node)
	if err != nil {
		p.log.Errorf("could not make client for %s: %v", node.Name, err)
		return StateUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*time.Duration(p.params.Timeout))
	defer cancel()
	client.Registry.FilterForCompatible(ctx)
	if err := client.PreferProvider(p.params.Preferred).Open(ctx); err != nil {
		p.log.Errorf("could not open client for %s: %v", node.Name, err)
		return StateUnknown
	}
	defer client.Close(ctx)

	state, err := client.GetPowerState(ctx)
	if err != nil {
		p.log.Errorf("could not get power state of %s: %v", node.Name, err)
		return StateUnknown
	}
	return NormalizePowerState(state)
}

// NormalizePowerState maps the state string reported by the management
// controller onto the Off/On/Unknown enum using the Redfish vocabulary.
func NormalizePowerState(state string) State {
	state = strings.TrimSpace(state)
	switch {
	case strings.EqualFold(state, string(redfish.OnPowerState)):
		return StateOn
	case strings.EqualFold(state, string(redfish.OffPowerState)):
		return StateOff
	}
	return StateUnknown
}

func (p *Prober) newClient(node Node) (*bmclib.Client, error) {
	clientOpts := []bmclib.Option{
		bmclib.WithLogger(p.bmcLog),
		bmclib.WithRedfishPort(fmt.Sprint(p.params.Port)),
		bmclib.WithRedfishUseBasicAuth(true),
		bmclib.WithIpmitoolPort(fmt.Sprint(IPMI_PORT)),
	}

	// only works if a valid cert is provided
	if p.params.WithSecureTLS {
		var pool *x509.CertPool
		if p.params.CertPoolFile != "" {
			pool = x509.NewCertPool()
			data, err := os.ReadFile(p.params.CertPoolFile)
			if err != nil {
				return nil, fmt.Errorf("could not read cert pool file: %v", err)
			}
			pool.AppendCertsFromPEM(data)
		}
		// a nil pool uses the system certs
		clientOpts = append(clientOpts, bmclib.WithSecureTLS(pool))
	}

	client := bmclib.NewClient(node.Host, p.params.User, p.params.Pass, clientOpts...)
	ds := registrar.Drivers{}
	for _, driver := range p.params.Drivers {
		ds = append(ds, client.Registry.Using(driver)...) // ipmi, gofish, redfish
	}
	client.Registry.Drivers = ds
	return client, nil
}
