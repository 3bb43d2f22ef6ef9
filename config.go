package tydom

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/sideeffect-io/tydom-go/internal/cloudapi"
	"github.com/sideeffect-io/tydom-go/internal/store"
)

// Mode selects local vs. remote connectivity.
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

// Polling configures the automatic re-send scheduler.
type Polling struct {
	IntervalSeconds int
	OnlyWhenActive  bool
	IsActive        func() bool
}

// Config is the immutable configuration for a Client.
type Config struct {
	// Mode and Host are not read by Client: Connect picks the mode and host
	// through the orchestrator (cached IP, discovered candidates, then
	// orchestrator.DefaultRemoteHost for remote).
	Mode Mode
	Host string
	MAC  string

	// Password, if set, is used directly. Otherwise CloudCredentials is
	// used to fetch a site-specific password through Cloud.
	Password         string
	CloudCredentials cloudapi.Credentials
	Cloud            *cloudapi.Client

	AllowInsecureTLS bool
	Timeout          time.Duration

	Polling Polling

	// MinFirmwareVersion, if set, is compared against GatewayInfo's
	// "version" field; a lower firmware version logs a warning.
	MinFirmwareVersion string

	Credentials store.CredentialStore
	Sites       store.SiteStore

	Logger hclog.Logger
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 10 * time.Second
}
