package pdu

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Driver is the uniform outlet-switching capability the orchestrator
// programs against. Implementations re-query the PDU on every call; no
// port state is cached between calls.
type Driver interface {
	// SetPort switches a single outlet to the desired logical state.
	SetPort(ctx context.Context, port int, state PortState) error
	// GetPort reads back the current logical state of a single outlet.
	GetPort(ctx context.Context, port int) (PortState, error)
}

// Config describes how to reach one PDU's management interface.
type Config struct {
	// Host is the PDU management address, with optional port and
	// scheme. A bare address is reached over plain http.
	Host     string
	Dialect  Dialect
	Username string
	Password string
	Timeout  time.Duration
	Insecure bool
}

// outletStatus is the wire representation both dialects share; only the
// meaning of State differs between them.
type outletStatus struct {
	State int `json:"state"`
}

// httpDriver talks to the PDU's JSON outlet API over HTTP. Both dialects
// use the same endpoints; the Dialect translates the raw status codes.
type httpDriver struct {
	config Config
	client *http.Client
}

// NewDriver builds the dialect-specific driver for a PDU target.
func NewDriver(config Config) Driver {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	client := &http.Client{
		Timeout: config.Timeout,
	}
	if config.Insecure {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &httpDriver{config: config, client: client}
}

func (d *httpDriver) outletURL(port int) string {
	host := d.config.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s/outlet/%d", host, port)
}

func (d *httpDriver) do(ctx context.Context, method string, port int, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.outletURL(port), bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Add("User-Agent", "pducycle")
	req.Header.Add("Content-Type", "application/json")
	if d.config.Username != "" {
		req.SetBasicAuth(d.config.Username, d.config.Password)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status %d", res.StatusCode)
	}
	return b, nil
}

func (d *httpDriver) SetPort(ctx context.Context, port int, state PortState) error {
	payload, err := json.Marshal(outletStatus{State: d.config.Dialect.rawCode(state)})
	if err != nil {
		return &CommandError{Host: d.config.Host, Port: port, Op: "set", Err: err}
	}
	if _, err := d.do(ctx, http.MethodPut, port, payload); err != nil {
		return &CommandError{Host: d.config.Host, Port: port, Op: "set", Err: err}
	}
	return nil
}

func (d *httpDriver) GetPort(ctx context.Context, port int) (PortState, error) {
	b, err := d.do(ctx, http.MethodGet, port, nil)
	if err != nil {
		return StateOff, &CommandError{Host: d.config.Host, Port: port, Op: "get", Err: err}
	}
	var status outletStatus
	if err := json.Unmarshal(b, &status); err != nil {
		return StateOff, &CommandError{Host: d.config.Host, Port: port, Op: "get", Err: err}
	}
	state, err := d.config.Dialect.portState(status.State)
	if err != nil {
		return StateOff, &CommandError{Host: d.config.Host, Port: port, Op: "get", Err: err}
	}
	return state, nil
}
