// Package orchestrator implements the connection mode-selection state
// machine: try the cached local IP, fall back to discovery and probing,
// and finally fall back to the vendor's remote relay.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/sideeffect-io/tydom-go/internal/store"
)

// DefaultRemoteHost is the host used for every remote connection.
const DefaultRemoteHost = "mediation.tydom.com"

// Override lets the caller force a mode, bypassing discovery.
type Override int

const (
	OverrideNone Override = iota
	OverrideForceLocal
	OverrideForceRemote
)

// State is one of the orchestrator's finite states.
type State int

const (
	StateIdle State = iota
	StateResolvingCredentials
	StateTryingCachedIP
	StateDiscovering
	StateProbing
	StateConnectingLocal
	StateConnectingRemote
	StateConnected
	StateFailed
)

// FailureReason taxonomizes why StateFailed was reached.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureMissingCredentials
	FailureLocalAndRemoteUnavailable
)

// Decision is the trace event emitted at every step of the algorithm.
type Decision struct {
	State  State
	Reason string
}

// Candidate is one discovered host, tagged with how it was found.
type Candidate struct {
	Host   string
	Method string // e.g. "bonjour", "other"
}

// Prober performs a full connect+disconnect cycle against a host with a
// short timeout, reporting success. Must never leak sockets regardless
// of outcome.
type Prober interface {
	Probe(ctx context.Context, host string, timeout time.Duration) error
}

// Discoverer returns ordered host candidates, Bonjour/mDNS first.
type Discoverer interface {
	Discover(ctx context.Context) ([]Candidate, error)
}

// Connector performs the real (non-probing) connect for the winning mode.
type Connector interface {
	ConnectLocal(ctx context.Context, host string) error
	ConnectRemote(ctx context.Context, host string) error
}

// Outcome is the orchestrator's terminal result.
type Outcome struct {
	State  State
	Mode   string // "local" or "remote", set only on StateConnected
	Host   string
	Reason FailureReason
}

// Orchestrator runs the decision algorithm once per Decide call.
type Orchestrator struct {
	creds        store.CredentialStore
	prober       Prober
	discoverer   Discoverer
	connector    Connector
	probeTimeout time.Duration
	log          hclog.Logger
	decisions    chan Decision
}

// New builds an Orchestrator. decisions may be nil to discard trace events.
func New(creds store.CredentialStore, prober Prober, discoverer Discoverer, connector Connector, probeTimeout time.Duration, decisions chan Decision, log hclog.Logger) *Orchestrator {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second // a short default keeps discovery responsive
	}
	return &Orchestrator{
		creds:        creds,
		prober:       prober,
		discoverer:   discoverer,
		connector:    connector,
		probeTimeout: probeTimeout,
		log:          log,
		decisions:    decisions,
	}
}

func (o *Orchestrator) emit(d Decision) {
	o.log.Debug("orchestrator decision", "state", d.State, "reason", d.Reason)
	if o.decisions == nil {
		return
	}
	select {
	case o.decisions <- d:
	default:
	}
}

// Decide runs the full mode-selection algorithm for mac, honoring override.
func (o *Orchestrator) Decide(ctx context.Context, mac string, override Override) Outcome {
	o.emit(Decision{State: StateResolvingCredentials})
	creds, ok, err := o.creds.Load(ctx, mac)
	if err != nil || !ok {
		o.emit(Decision{State: StateFailed, Reason: "missing credentials"})
		return Outcome{State: StateFailed, Reason: FailureMissingCredentials}
	}

	if override == OverrideForceRemote {
		return o.connectRemote(ctx)
	}

	if creds.CachedLocalIP != "" {
		o.emit(Decision{State: StateTryingCachedIP, Reason: creds.CachedLocalIP})
		if err := o.prober.Probe(ctx, creds.CachedLocalIP, o.probeTimeout); err == nil {
			return o.connectLocal(ctx, creds, creds.CachedLocalIP)
		}
	}

	// Discovery and probing apply regardless of override except force_remote;
	// force_local that exhausts every local candidate still falls through to
	// remote rather than failing outright.
	o.emit(Decision{State: StateDiscovering})
	candidates, err := o.discoverer.Discover(ctx)
	if err != nil {
		o.log.Warn("discovery failed", "error", err)
		candidates = nil
	}

	o.emit(Decision{State: StateProbing})
	if host, ok := o.probeSequentially(ctx, candidates); ok {
		return o.connectLocal(ctx, creds, host)
	}

	return o.connectRemote(ctx)
}

// probeSequentially tries each candidate in order, returning the first
// success. Every probe does a full connect+disconnect cycle regardless of
// outcome (delegated to Prober); failures are aggregated for logging.
func (o *Orchestrator) probeSequentially(ctx context.Context, candidates []Candidate) (string, bool) {
	var errs *multierror.Error
	for _, cand := range candidates {
		if err := o.prober.Probe(ctx, cand.Host, o.probeTimeout); err == nil {
			return cand.Host, true
		} else {
			errs = multierror.Append(errs, fmt.Errorf("probe %s (%s): %w", cand.Host, cand.Method, err))
		}
	}
	if errs != nil {
		o.log.Debug("all local candidates failed", "error", errs)
	}
	return "", false
}

func (o *Orchestrator) connectLocal(ctx context.Context, creds store.Credentials, host string) Outcome {
	o.emit(Decision{State: StateConnectingLocal, Reason: host})
	if err := o.connector.ConnectLocal(ctx, host); err != nil {
		o.emit(Decision{State: StateFailed, Reason: err.Error()})
		return Outcome{State: StateFailed, Reason: FailureLocalAndRemoteUnavailable}
	}

	creds.CachedLocalIP = host
	creds.UpdatedAt = timeNow()
	if err := o.creds.Save(ctx, creds); err != nil {
		o.log.Warn("failed to persist cached_local_ip", "error", err)
	}

	o.emit(Decision{State: StateConnected, Reason: "local:" + host})
	return Outcome{State: StateConnected, Mode: "local", Host: host}
}

func (o *Orchestrator) connectRemote(ctx context.Context) Outcome {
	host := DefaultRemoteHost
	o.emit(Decision{State: StateConnectingRemote, Reason: host})
	if err := o.connector.ConnectRemote(ctx, host); err != nil {
		o.emit(Decision{State: StateFailed, Reason: err.Error()})
		return Outcome{State: StateFailed, Reason: FailureLocalAndRemoteUnavailable}
	}
	o.emit(Decision{State: StateConnected, Reason: "remote:" + host})
	return Outcome{State: StateConnected, Mode: "remote", Host: host}
}

// timeNow is overridable in tests.
var timeNow = time.Now
