// Package transport implements the connection lifecycle: the digest
// challenge handshake, WebSocket upgrade, send/receive framing with the
// remote-mode 0x02 prefix, and graceful shutdown.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/sideeffect-io/tydom-go/internal/digest"
)

// Mode selects local vs. remote connectivity.
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

// remotePrefix is prepended to every outgoing frame (and stripped from
// every incoming one) in remote mode.
const remotePrefix byte = 0x02

// Handshake and transport error kinds.
var (
	ErrAlreadyConnected = fmt.Errorf("transport: already connected")
	ErrNotConnected     = fmt.Errorf("transport: not connected")
	ErrMissingChallenge = fmt.Errorf("transport: response carried no www-authenticate header")
)

// InvalidResponseError wraps an unexpected HTTPS challenge response.
type InvalidResponseError struct {
	StatusCode int
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("transport: invalid challenge response, status %d", e.StatusCode)
}

// PasswordResolver resolves the password to authenticate with: the direct
// password if present, else the injected cloud fetch.
type PasswordResolver func(ctx context.Context) (string, error)

// Config is the immutable connection configuration.
type Config struct {
	Mode             Mode
	Host             string
	MAC              string
	ResolvePassword  PasswordResolver
	AllowInsecureTLS bool
	Timeout          time.Duration
	RandomBytes      digest.RandomBytesFunc // nil uses go-uuid, same as the digest package's default
	Logger           hclog.Logger
}

// CommandPrefix returns the configured mode's outgoing byte prefix, or 0
// for local mode: remote implies command_prefix = 0x02, local implies
// absent.
func (c Config) CommandPrefix() (byte, bool) {
	if c.Mode == ModeRemote {
		return remotePrefix, true
	}
	return 0, false
}

// Connection holds the WebSocket for one session and exposes a bounded,
// ordered message stream.
type Connection struct {
	cfg Config
	log hclog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	incoming  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a Connection that is not yet connected.
func New(cfg Config) *Connection {
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Connection{
		cfg:      cfg,
		log:      log,
		incoming: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (c *Connection) randomBytes(n int) ([]byte, error) {
	if c.cfg.RandomBytes != nil {
		return c.cfg.RandomBytes(n)
	}
	b, err := uuid.GenerateRandomBytes(n)
	if err != nil {
		return nil, fmt.Errorf("transport: generate random bytes: %w", err)
	}
	return b, nil
}

// hostPort appends the literal ":443" port the gateway expects, unless the configured
// host already carries its own port (as it does in tests against an
// ephemeral httptest listener).
func hostPort(host string) string {
	if strings.Contains(host, ":") {
		return host
	}
	return host + ":443"
}

func (c *Connection) challengeURL() string {
	return fmt.Sprintf("https://%s/mediation/client?mac=%s&appli=1", hostPort(c.cfg.Host), c.cfg.MAC)
}

func (c *Connection) websocketURL() string {
	return fmt.Sprintf("wss://%s/mediation/client?mac=%s&appli=1", hostPort(c.cfg.Host), c.cfg.MAC)
}

// Connect performs the full handshake: resolve password, HTTPS challenge,
// parse WWW-Authenticate, build Authorization, dial the WebSocket, spawn
// the receive loop.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	password, err := c.cfg.ResolvePassword(ctx)
	if err != nil {
		return fmt.Errorf("transport: resolve password: %w", err)
	}

	wsKeyBytes, err := c.randomBytes(16)
	if err != nil {
		return err
	}
	secWSKey := base64.StdEncoding.EncodeToString(wsKeyBytes)

	session := httpSession(c.cfg.AllowInsecureTLS, c.cfg.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.challengeURL(), nil)
	if err != nil {
		return fmt.Errorf("transport: build challenge request: %w", err)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Host", c.cfg.Host)
	req.Header.Set("Sec-WebSocket-Key", secWSKey)
	req.Header.Set("Sec-WebSocket-Version", "13")

	resp, err := session.Do(req)
	if err != nil {
		return fmt.Errorf("transport: challenge request: %w", err)
	}
	defer resp.Body.Close()

	challengeHeader := locateWWWAuthenticate(resp.Header)
	if challengeHeader == "" {
		return ErrMissingChallenge
	}
	challenge, err := digest.ParseChallenge(challengeHeader)
	if err != nil {
		return fmt.Errorf("transport: parse challenge: %w", err)
	}

	// Username: no vendor source was retrievable to confirm the exact value
	// the gateway expects; using the normalized MAC (normalized once by the
	// caller, see tydom.New) is the documented Open Question resolution.
	authorization, err := digest.Authorization(digest.Params{
		Username:    c.cfg.MAC,
		Password:    password,
		Method:      http.MethodGet,
		URI:         challengeRequestURI(c.cfg.Host, c.cfg.MAC),
		Challenge:   challenge,
		RandomBytes: c.cfg.RandomBytes,
	})
	if err != nil {
		return fmt.Errorf("transport: build authorization: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.Timeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.AllowInsecureTLS}, //nolint:gosec // user-configurable, defaults to verified TLS
	}
	header := http.Header{}
	header.Set("Authorization", authorization)

	conn, _, err := dialer.DialContext(ctx, c.websocketURL(), header)
	if err != nil {
		return fmt.Errorf("transport: websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.receiveLoop()
	return nil
}

func challengeRequestURI(host, mac string) string {
	return fmt.Sprintf("/mediation/client?mac=%s&appli=1", mac)
}

func locateWWWAuthenticate(h http.Header) string {
	for name, values := range h {
		if strings.EqualFold(name, "www-authenticate") && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func httpSession(allowInsecureTLS bool, timeout time.Duration) *http.Client {
	transport := cleanhttp.DefaultPooledTransport()
	if allowInsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user-configurable, defaults to verified TLS
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Send writes a frame, applying the remote-mode prefix byte. Fails with
// ErrNotConnected if no socket is open.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	if prefix, ok := c.cfg.CommandPrefix(); ok {
		framed := make([]byte, 0, len(data)+1)
		framed = append(framed, prefix)
		framed = append(framed, data...)
		data = framed
	}

	c.mu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, data)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Messages returns the channel of received payloads, in receipt order,
// with the remote-mode prefix stripped when present.
func (c *Connection) Messages() <-chan []byte {
	return c.incoming
}

func (c *Connection) receiveLoop() {
	defer close(c.incoming)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug("receive loop ended", "error", err)
			return
		}

		if _, ok := c.cfg.CommandPrefix(); ok && len(message) > 0 && message[0] == remotePrefix {
			message = message[1:]
		}

		select {
		case c.incoming <- message:
		case <-c.done:
			return
		}
	}
}

// Disconnect is synchronous with respect to resource release: once it
// returns, the session is invalidated and the socket closed.
// Idempotent.
func (c *Connection) Disconnect() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	c.mu.Lock()
	conn := c.conn
	c.connected = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
