package peer

import (
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/transport/v3"
	pion "github.com/pion/webrtc/v4"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/logging"
	"github.com/Revaiowo/streamRTC/internal/session"
)

type options struct {
	logger *slog.Logger
	net    transport.Net
	relay  func() bool
}

type Option func(*options)

// WithLogger sets the logger used for the adapter and for pion itself.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNet replaces the OS network stack, typically with a vnet.Net in tests.
func WithNet(n transport.Net) Option {
	return func(o *options) { o.net = n }
}

// WithRelayDetector overrides the check that forces TURN on tunneled hosts.
func WithRelayDetector(f func() bool) Option {
	return func(o *options) { o.relay = f }
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: slog.Default(),
		relay:  ShouldForceRelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewAPI builds a pion API with the default codecs and interceptors (NACK,
// RTCP reports, TWCC) and pion's logs routed into slog.
func NewAPI(opts ...Option) (*pion.API, error) {
	o := newOptions(opts)
	return newAPI(o)
}

func newAPI(o *options) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, session.NewError("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, session.NewError("register interceptors", err)
	}

	se := pion.SettingEngine{
		LoggerFactory: logging.NewPionFactory(o.logger),
	}
	if o.net != nil {
		se.SetNet(o.net)
	}

	return pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(registry),
		pion.WithSettingEngine(se),
	), nil
}

// Configuration derives the ICE configuration from the client settings.
func Configuration(cfg config.Client, forceRelay func() bool) pion.Configuration {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || (forceRelay != nil && forceRelay())) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}
