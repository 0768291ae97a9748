// Package connection composes host identity, endpoint resolution,
// envelope construction, and authenticated posting into the single
// "send one payload to endpoint/uri-context" operation spec.md calls C5.
// Grounded on internal/worker/retry_client.go's composition style
// (NewRetryHTTPClient wrapping an *http.Client plus fixed config) and on
// spec.md §9's capability-injection note: the web-post provider is
// swappable through the webpost.Poster interface in Config. Host identity
// (fingerprint and MAC) always comes from a hostid.HostIdentity that New
// builds itself; it is not injectable.
package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/endlessm/eos-metrics-go/envelope"
	"github.com/endlessm/eos-metrics-go/internal/endpointcfg"
	"github.com/endlessm/eos-metrics-go/internal/hostid"
	"github.com/endlessm/eos-metrics-go/internal/webpost"
	"github.com/endlessm/eos-metrics-go/payload"
)

// Credentials are the Basic-auth username/password a Connection
// authenticates with. spec.md §4.5 hardcodes these as USERNAME/PASSWORD
// constants and flags them as a security smell to fix (§9); here they are
// an explicit configuration value instead of package-level constants.
type Credentials struct {
	Username string
	Password string
}

// DefaultCredentials reproduces the original constants, for callers that
// haven't migrated to their own credential configuration yet.
func DefaultCredentials() Credentials {
	return Credentials{Username: "endlessos", Password: "sosseldne"}
}

// Config configures a Connection.
type Config struct {
	// URIContext is the relative path appended to the resolved endpoint,
	// e.g. "metrics".
	URIContext string
	// FormParamName is the outer JSON key the envelope is wrapped under.
	// Defaults to "data".
	FormParamName string
	// FingerprintPath is the file the UUID fingerprint is persisted to.
	FingerprintPath string
	// EndpointConfigPath is the JSON file naming the collection endpoint.
	EndpointConfigPath string
	// Credentials are the Basic-auth credentials used to authenticate.
	Credentials Credentials
	// Poster performs the actual HTTP POST. Defaults to webpost.NewHTTPPoster(nil).
	Poster webpost.Poster
}

func (c Config) withDefaults() Config {
	if c.FormParamName == "" {
		c.FormParamName = "data"
	}
	if c.URIContext == "" {
		c.URIContext = "metrics"
	}
	if c.Credentials == (Credentials{}) {
		c.Credentials = DefaultCredentials()
	}
	if c.Poster == nil {
		c.Poster = webpost.NewHTTPPoster(nil)
	}
	return c
}

// Connection sends payloads to a single collection endpoint/uri-context.
// Its lazily-computed fields (endpoint, URL, fingerprint, machine ID) are
// each guarded so concurrent sends never duplicate side effects — in
// particular, fingerprint-file creation happens at most once.
type Connection struct {
	cfg Config

	identity *hostid.HostIdentity

	endpointOnce sync.Once
	endpoint     string

	urlOnce sync.Once
	url     string
}

// New constructs a Connection. Nothing is read from disk or the network
// until the first Send or Endpoint call.
func New(cfg Config) *Connection {
	cfg = cfg.withDefaults()
	return &Connection{
		cfg:      cfg,
		identity: hostid.New(cfg.FingerprintPath),
	}
}

func (c *Connection) resolvedEndpoint() string {
	c.endpointOnce.Do(func() {
		c.endpoint = endpointcfg.Resolve(c.cfg.EndpointConfigPath)
	})
	return c.endpoint
}

// Endpoint returns the resolved collection endpoint (cached after first
// call), per spec.md §4.2.
func (c *Connection) Endpoint() string {
	return c.resolvedEndpoint()
}

func (c *Connection) resolvedURL() string {
	c.urlOnce.Do(func() {
		c.url = c.resolvedEndpoint() + "/" + c.cfg.URIContext
	})
	return c.url
}

// SendSync builds the envelope for payload and posts it synchronously.
// On failure, the error is prefixed per spec.md §4.5:
// "Error sending metrics data to <user>@<url>: ...".
func (c *Connection) SendSync(ctx context.Context, p payload.Payload) error {
	body, err := c.buildBody(p)
	if err != nil {
		return err
	}

	url := c.resolvedURL()
	creds := c.cfg.Credentials
	if err := c.cfg.Poster.PostSync(ctx, url, string(body), creds.Username, creds.Password); err != nil {
		return fmt.Errorf("error sending metrics data to %s@%s: %w", creds.Username, url, err)
	}
	return nil
}

// SendAsync is the non-blocking form of SendSync; completion is invoked
// exactly once with either nil or the same prefixed error SendSync would
// return.
func (c *Connection) SendAsync(ctx context.Context, p payload.Payload, completion func(error)) {
	body, err := c.buildBody(p)
	if err != nil {
		if completion != nil {
			completion(err)
		}
		return
	}

	url := c.resolvedURL()
	creds := c.cfg.Credentials
	c.cfg.Poster.PostAsync(ctx, url, string(body), creds.Username, creds.Password, func(err error) {
		if err != nil {
			err = fmt.Errorf("error sending metrics data to %s@%s: %w", creds.Username, url, err)
		}
		if completion != nil {
			completion(err)
		}
	})
}

func (c *Connection) buildBody(p payload.Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("connection: payload must not be nil")
	}
	return envelope.Build(p, c.cfg.FormParamName, c.identity.Fingerprint(), c.identity.MachineID())
}
