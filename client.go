// Package tydom is a client library for DeltaDore Tydom home-automation
// gateways: digest-authenticated WebSocket connectivity, local/remote
// mode selection with discovery and probing, a device catalog, and the
// command/decode/effect pipeline that turns gateway traffic into typed
// messages.
package tydom

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	goversion "github.com/hashicorp/go-version"
	"github.com/oklog/run"

	"github.com/sideeffect-io/tydom-go/internal/catalog"
	"github.com/sideeffect-io/tydom-go/internal/command"
	"github.com/sideeffect-io/tydom-go/internal/decode"
	"github.com/sideeffect-io/tydom-go/internal/effect"
	"github.com/sideeffect-io/tydom-go/internal/httpframe"
	"github.com/sideeffect-io/tydom-go/internal/jsonvalue"
	"github.com/sideeffect-io/tydom-go/internal/orchestrator"
	"github.com/sideeffect-io/tydom-go/internal/poll"
	"github.com/sideeffect-io/tydom-go/internal/store"
	"github.com/sideeffect-io/tydom-go/internal/transport"
)

// Override forces a connectivity mode, bypassing discovery.
type Override = orchestrator.Override

const (
	OverrideNone        = orchestrator.OverrideNone
	OverrideForceLocal  = orchestrator.OverrideForceLocal
	OverrideForceRemote = orchestrator.OverrideForceRemote
)

// Discoverer returns ordered local-network host candidates (Bonjour/mDNS
// in practice); injected because discovery mechanics are out of scope.
type Discoverer = orchestrator.Discoverer

// noCandidatesDiscoverer is used when the caller has no discovery
// mechanism to inject: local connectivity then rests entirely on the
// cached IP, falling through to remote otherwise.
type noCandidatesDiscoverer struct{}

func (noCandidatesDiscoverer) Discover(ctx context.Context) ([]orchestrator.Candidate, error) {
	return nil, nil
}

// Client is the top-level facade: it owns the catalog, the connection
// orchestrator, and the decode/effect pipeline wired together.
type Client struct {
	cfg       Config
	log       hclog.Logger
	catalog   *catalog.Catalog
	cdata     *effect.CDataStore
	executor  *effect.Executor
	scheduler *poll.Scheduler
	orch      *orchestrator.Orchestrator

	decisions chan orchestrator.Decision
	watchdog  chan poll.Event
	messages  chan decode.Message

	mu     sync.Mutex
	conn   *transport.Connection
	cancel context.CancelFunc
	runErr chan error

	txSeq atomic.Int64
}

// New builds a Client from cfg. discoverer may be nil, in which case local
// connectivity only ever tries the credential store's cached IP.
//
// cfg.MAC is normalized once here (store.NormalizeMAC) so the digest
// username, the mediation URL's mac= query value, and the credential
// store's lookup key are all the same canonical form.
func New(cfg Config, discoverer Discoverer) (*Client, error) {
	normalizedMAC, err := store.NormalizeMAC(cfg.MAC)
	if err != nil {
		return nil, fmt.Errorf("tydom: %w", err)
	}
	cfg.MAC = normalizedMAC

	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if discoverer == nil {
		discoverer = noCandidatesDiscoverer{}
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = store.NewMemoryCredentialStore()
	}

	c := &Client{
		cfg:       cfg,
		log:       log,
		catalog:   catalog.New(),
		cdata:     effect.NewCDataStore(),
		decisions: make(chan orchestrator.Decision, 32),
		watchdog:  make(chan poll.Event, 8),
		messages:  make(chan decode.Message, 64),
	}

	c.scheduler = poll.New(c.sendPoll, cfg.Polling.IsActive, cfg.Polling.OnlyWhenActive, c.watchdog, log)
	c.executor = effect.New(c.sendCommand, c.scheduler, c.scheduler, c.cdata, c.sendRefreshAll, effect.WithLogger(log))
	c.orch = orchestrator.New(creds, proberFunc(c.probe), discoverer, connectorFuncs{local: c.connectLocal, remote: c.connectRemote}, 0, c.decisions, log)
	return c, nil
}

// proberFunc adapts a plain function to orchestrator.Prober.
type proberFunc func(ctx context.Context, host string, timeout time.Duration) error

func (f proberFunc) Probe(ctx context.Context, host string, timeout time.Duration) error {
	return f(ctx, host, timeout)
}

// connectorFuncs adapts two plain functions to orchestrator.Connector.
type connectorFuncs struct {
	local  func(ctx context.Context, host string) error
	remote func(ctx context.Context, host string) error
}

func (c connectorFuncs) ConnectLocal(ctx context.Context, host string) error {
	return c.local(ctx, host)
}

func (c connectorFuncs) ConnectRemote(ctx context.Context, host string) error {
	return c.remote(ctx, host)
}

func (c *Client) resolvePassword(ctx context.Context) (string, error) {
	if c.cfg.Password != "" {
		return c.cfg.Password, nil
	}
	if c.cfg.Cloud == nil {
		return "", fmt.Errorf("tydom: no direct password and no cloud client configured")
	}
	return c.cfg.Cloud.FetchGatewayPassword(ctx, c.cfg.CloudCredentials, c.cfg.MAC)
}

func (c *Client) probe(ctx context.Context, host string, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn := transport.New(transport.Config{
		Mode:             transport.ModeLocal,
		Host:             host,
		MAC:              c.cfg.MAC,
		ResolvePassword:  c.resolvePassword,
		AllowInsecureTLS: c.cfg.AllowInsecureTLS,
		Timeout:          timeout,
		Logger:           c.log,
	})
	if err := conn.Connect(probeCtx); err != nil {
		return err
	}
	return conn.Disconnect()
}

func (c *Client) connectLocal(ctx context.Context, host string) error {
	return c.dial(ctx, transport.ModeLocal, host)
}

func (c *Client) connectRemote(ctx context.Context, host string) error {
	return c.dial(ctx, transport.ModeRemote, host)
}

func (c *Client) dial(ctx context.Context, mode transport.Mode, host string) error {
	conn := transport.New(transport.Config{
		Mode:             mode,
		Host:             host,
		MAC:              c.cfg.MAC,
		ResolvePassword:  c.resolvePassword,
		AllowInsecureTLS: c.cfg.AllowInsecureTLS,
		Timeout:          c.cfg.timeout(),
		Logger:           c.log,
	})
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Connect runs the orchestrator's mode-selection algorithm and, on
// success, starts the background pipeline (receive pump, effect
// executor, poll scheduler) as a run.Group.
func (c *Client) Connect(ctx context.Context, override Override) error {
	outcome := c.orch.Decide(ctx, c.cfg.MAC, override)
	if outcome.State != orchestrator.StateConnected {
		return fmt.Errorf("tydom: connect failed: %s", outcome.Reason)
	}
	c.startPipeline(ctx)
	return nil
}

func (c *Client) startPipeline(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	var g run.Group
	g.Add(func() error { return c.pump(runCtx) }, func(error) { cancel() })
	g.Add(func() error { return c.executor.Run(runCtx) }, func(error) { cancel() })
	g.Add(func() error { return c.scheduler.Run(runCtx) }, func(error) { cancel() })

	c.runErr = make(chan error, 1)
	go func() { c.runErr <- g.Run() }()
}

func (c *Client) pump(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("tydom: pump started without a connection")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-conn.Messages():
			if !ok {
				return fmt.Errorf("tydom: connection closed")
			}
			c.handleIncoming(ctx, raw)
		}
	}
}

func (c *Client) handleIncoming(ctx context.Context, raw []byte) {
	var msg decode.Message
	frame, err := httpframe.Parse(raw)
	if err != nil {
		msg = decode.Raw{Payload: raw, ParseError: err.Error()}
	} else {
		msg = decode.Decode(frame, c.catalog)
	}

	c.checkFirmwareFloor(msg)

	if effs := deriveEffects(msg); len(effs) > 0 {
		c.executor.Enqueue(ctx, effs...)
	}

	select {
	case c.messages <- msg:
	case <-ctx.Done():
	}
}

// deriveEffects recognizes the two message shapes that carry their own
// side-effect instructions: a ping reply marks the pong watchdog, and a
// cdata command reply feeds the reassembly store keyed by its tx_id.
func deriveEffects(msg decode.Message) []effect.Effect {
	raw, ok := msg.(decode.Raw)
	if !ok {
		return nil
	}
	switch {
	case raw.URIOrigin == "/ping":
		return []effect.Effect{effect.PongReceived{}}
	case strings.Contains(raw.URIOrigin, "/cdata"):
		return []effect.Effect{effect.CDataReplyChunk{
			TxID: raw.TxID,
			Data: raw.Payload,
			EOR:  cdataIsEOR(raw.Payload),
		}}
	default:
		return nil
	}
}

// cdataIsEOR reports whether a cdata command reply is the terminal chunk
// of a reassembly sequence: an explicit boolean "eor" field, when present,
// is authoritative; a body that doesn't carry one (or doesn't parse as
// JSON at all) is treated as a single, immediately-complete chunk.
func cdataIsEOR(body []byte) bool {
	v, err := jsonvalue.Parse(body)
	if err != nil {
		return true
	}
	if eor, ok := v.Field("eor"); ok {
		if b, ok := eor.Bool(); ok {
			return b
		}
	}
	return true
}

func (c *Client) checkFirmwareFloor(msg decode.Message) {
	if c.cfg.MinFirmwareVersion == "" {
		return
	}
	info, ok := msg.(decode.GatewayInfo)
	if !ok {
		return
	}
	versionField, ok := info.Payload.Field("version")
	if !ok {
		return
	}
	versionStr, ok := versionField.String()
	if !ok {
		return
	}

	got, err := goversion.NewVersion(versionStr)
	if err != nil {
		c.log.Warn("gateway reported an unparsable firmware version", "version", versionStr, "error", err)
		return
	}
	floor, err := goversion.NewVersion(c.cfg.MinFirmwareVersion)
	if err != nil {
		c.log.Warn("configured minimum firmware version is unparsable", "minimum", c.cfg.MinFirmwareVersion, "error", err)
		return
	}
	if got.LessThan(floor) {
		c.log.Warn("gateway firmware is below the configured minimum", "version", versionStr, "minimum", c.cfg.MinFirmwareVersion)
	}
}

func (c *Client) nextTxID() string {
	return strconv.FormatInt(c.txSeq.Add(1), 10)
}

func (c *Client) sendCommand(ctx context.Context, f command.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("tydom: not connected")
	}
	return conn.Send(f.Bytes)
}

func (c *Client) sendRefreshAll(ctx context.Context) error {
	return c.sendCommand(ctx, command.RefreshAll(c.nextTxID()))
}

func (c *Client) sendPoll(ctx context.Context, url string) {
	if err := c.sendCommand(ctx, command.PollDeviceData(c.nextTxID(), url)); err != nil {
		c.log.Warn("poll re-send failed", "url", url, "error", err)
	}
}

// Send dispatches a pre-built command frame (see the command package's
// constructors), stamping no transaction id of its own.
func (c *Client) Send(ctx context.Context, f command.Frame) error {
	return c.sendCommand(ctx, f)
}

// NextTxID returns the next transaction id for a caller-built command.
func (c *Client) NextTxID() string { return c.nextTxID() }

// Messages returns the decoded message stream.
func (c *Client) Messages() <-chan decode.Message { return c.messages }

// Decisions returns the orchestrator's state-machine trace.
func (c *Client) Decisions() <-chan orchestrator.Decision { return c.decisions }

// WatchdogEvents returns the poll scheduler's pong-watchdog trace.
func (c *Client) WatchdogEvents() <-chan poll.Event { return c.watchdog }

// TakeCDataReply returns and evicts the reassembled payload for txID, if
// its terminal chunk has arrived.
func (c *Client) TakeCDataReply(txID string) ([]byte, bool) {
	return c.cdata.Take(txID)
}

// Catalog exposes the device catalog for read access (name/usage/kind
// lookups); the only mutator is the decode pipeline itself.
func (c *Client) Catalog() *catalog.Catalog { return c.catalog }

// Close cancels the background pipeline and closes the underlying
// connection. Idempotent-safe to call even if Connect was never called.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	runErr := c.runErr
	c.runErr = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if runErr != nil {
		<-runErr
	}
	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}
