package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sideeffect-io/tydom-go/internal/store"
)

type fakeProber struct {
	succeedFor map[string]bool
}

func (p fakeProber) Probe(ctx context.Context, host string, timeout time.Duration) error {
	if p.succeedFor[host] {
		return nil
	}
	return errors.New("probe failed")
}

type fakeDiscoverer struct {
	candidates []Candidate
}

func (d fakeDiscoverer) Discover(ctx context.Context) ([]Candidate, error) {
	return d.candidates, nil
}

type fakeConnector struct {
	localErr  error
	remoteErr error
	gotLocal  string
	gotRemote string
}

func (c *fakeConnector) ConnectLocal(ctx context.Context, host string) error {
	c.gotLocal = host
	return c.localErr
}

func (c *fakeConnector) ConnectRemote(ctx context.Context, host string) error {
	c.gotRemote = host
	return c.remoteErr
}

func TestOrchestrator_Failover_CachedIPFailsDiscoveryFindsSecondCandidate(t *testing.T) {
	creds := store.NewMemoryCredentialStore()
	require.NoError(t, creds.Save(context.Background(), store.Credentials{
		MAC: "AABBCCDDEEFF", Password: "p", CachedLocalIP: "192.168.1.50",
	}))

	prober := fakeProber{succeedFor: map[string]bool{"10.0.0.5": true}}
	discoverer := fakeDiscoverer{candidates: []Candidate{{Host: "10.0.0.5", Method: "bonjour"}, {Host: "10.0.0.6", Method: "bonjour"}}}
	connector := &fakeConnector{}

	o := New(creds, prober, discoverer, connector, 0, nil, nil)
	outcome := o.Decide(context.Background(), "AABBCCDDEEFF", OverrideNone)

	require.Equal(t, StateConnected, outcome.State)
	require.Equal(t, "local", outcome.Mode)
	require.Equal(t, "10.0.0.5", outcome.Host)
	require.Equal(t, "10.0.0.5", connector.gotLocal)

	saved, ok, err := creds.Load(context.Background(), "AABBCCDDEEFF")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", saved.CachedLocalIP)
}

func TestOrchestrator_MissingCredentials_Fails(t *testing.T) {
	creds := store.NewMemoryCredentialStore()
	o := New(creds, fakeProber{}, fakeDiscoverer{}, &fakeConnector{}, 0, nil, nil)

	outcome := o.Decide(context.Background(), "AABBCCDDEEFF", OverrideNone)
	require.Equal(t, StateFailed, outcome.State)
	require.Equal(t, FailureMissingCredentials, outcome.Reason)
}

func TestOrchestrator_ForceRemote_SkipsLocalEntirely(t *testing.T) {
	creds := store.NewMemoryCredentialStore()
	require.NoError(t, creds.Save(context.Background(), store.Credentials{
		MAC: "AABBCCDDEEFF", Password: "p", CachedLocalIP: "192.168.1.50",
	}))

	prober := fakeProber{succeedFor: map[string]bool{"192.168.1.50": true}}
	connector := &fakeConnector{}

	o := New(creds, prober, fakeDiscoverer{}, connector, 0, nil, nil)
	outcome := o.Decide(context.Background(), "AABBCCDDEEFF", OverrideForceRemote)

	require.Equal(t, StateConnected, outcome.State)
	require.Equal(t, "remote", outcome.Mode)
	require.Equal(t, DefaultRemoteHost, connector.gotRemote)
	require.Empty(t, connector.gotLocal)
}

func TestOrchestrator_NoCandidatesFallsBackToRemote(t *testing.T) {
	creds := store.NewMemoryCredentialStore()
	require.NoError(t, creds.Save(context.Background(), store.Credentials{MAC: "AABBCCDDEEFF", Password: "p"}))

	connector := &fakeConnector{}
	o := New(creds, fakeProber{}, fakeDiscoverer{}, connector, 0, nil, nil)

	outcome := o.Decide(context.Background(), "AABBCCDDEEFF", OverrideNone)
	require.Equal(t, StateConnected, outcome.State)
	require.Equal(t, "remote", outcome.Mode)
}

func TestOrchestrator_DecisionsTraceEmitted(t *testing.T) {
	creds := store.NewMemoryCredentialStore()
	require.NoError(t, creds.Save(context.Background(), store.Credentials{MAC: "AABBCCDDEEFF", Password: "p"}))

	decisions := make(chan Decision, 16)
	o := New(creds, fakeProber{}, fakeDiscoverer{}, &fakeConnector{}, 0, decisions, nil)
	o.Decide(context.Background(), "AABBCCDDEEFF", OverrideNone)
	close(decisions)

	var states []State
	for d := range decisions {
		states = append(states, d.State)
	}
	require.Contains(t, states, StateResolvingCredentials)
	require.Contains(t, states, StateDiscovering)
	require.Contains(t, states, StateConnected)
}
