package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

// Default configuration values
const (
	DefaultListen        = ":8000"
	DefaultAllowedOrigin = "http://localhost:3000"
	DefaultServerURL     = "ws://localhost:8000/ws"
	DefaultSTUN          = "stun:stun.l.google.com:19302"

	EnvPrefix = "STREAMRTC"
)

// Config keys. Nested keys map to environment variables by upper-casing and
// replacing dots with underscores, e.g. relay.listen -> STREAMRTC_RELAY_LISTEN.
const (
	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"

	KeyListen          = "relay.listen"
	KeyAllowedOrigins  = "relay.allowed_origins"
	KeyMaxMessageSize  = "relay.max_message_size"
	KeySendBuffer      = "relay.send_buffer"
	KeyRateLimit       = "relay.rate_limit"
	KeyRateBurst       = "relay.rate_burst"
	KeyPongWait        = "relay.pong_wait"
	KeyWriteWait       = "relay.write_wait"
	KeyShutdownTimeout = "relay.shutdown_timeout"

	KeyServerURL   = "client.server_url"
	KeyCodec       = "client.codec"
	KeyVideoFile   = "client.video_file"
	KeyAudioFile   = "client.audio_file"
	KeyReceiveOnly = "client.receive_only"

	KeySTUNServer = "ice.stun_server"
	KeyTURNServer = "ice.turn_server"
	KeyTURNUser   = "ice.turn_username"
	KeyTURNPass   = "ice.turn_password"
	KeyForceRelay = "ice.force_relay"
)

// Relay configures the signaling server.
type Relay struct {
	Listen          string
	AllowedOrigins  []string
	MaxMessageSize  int64
	SendBuffer      int
	RateLimit       float64
	RateBurst       int
	PongWait        time.Duration
	WriteWait       time.Duration
	ShutdownTimeout time.Duration
}

// Client configures a peer joining a room.
type Client struct {
	ServerURL   string
	Codec       string
	VideoFile   string
	AudioFile   string
	ReceiveOnly bool

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Config holds application configuration
type Config struct {
	LogLevel  string
	LogFormat string
	Relay     Relay
	Client    Client
}

// New returns a viper instance with defaults and environment bindings in
// place. Callers bind their command flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The unprefixed ICE variables are kept for existing deployments.
	v.BindEnv(KeySTUNServer, EnvPrefix+"_ICE_STUN_SERVER", "STUN_SERVER")
	v.BindEnv(KeyTURNServer, EnvPrefix+"_ICE_TURN_SERVER", "TURN_SERVER")
	v.BindEnv(KeyTURNUser, EnvPrefix+"_ICE_TURN_USERNAME", "TURN_USERNAME")
	v.BindEnv(KeyTURNPass, EnvPrefix+"_ICE_TURN_PASSWORD", "TURN_PASSWORD")
	v.BindEnv(KeyLogLevel, EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv(KeyLogFormat, EnvPrefix+"_LOG_FORMAT", "LOG_FORMAT")

	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "error")
	v.SetDefault(KeyLogFormat, "text")

	v.SetDefault(KeyListen, DefaultListen)
	v.SetDefault(KeyAllowedOrigins, []string{DefaultAllowedOrigin})
	v.SetDefault(KeyMaxMessageSize, 64*1024)
	v.SetDefault(KeySendBuffer, 256)
	// Messages over the limit are dropped, ICE candidates included, so the
	// burst has to cover a full candidate gathering round.
	v.SetDefault(KeyRateLimit, 50.0)
	v.SetDefault(KeyRateBurst, 100)
	v.SetDefault(KeyPongWait, 60*time.Second)
	v.SetDefault(KeyWriteWait, 10*time.Second)
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)

	v.SetDefault(KeyServerURL, DefaultServerURL)
	v.SetDefault(KeyCodec, protocol.CodecJSON)
	v.SetDefault(KeySTUNServer, DefaultSTUN)
}

// ReadFile loads an optional config file. An empty path searches the
// working directory for config.yaml; a missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads configuration with the following priority:
// 1. CLI flags bound to v - highest priority
// 2. Environment variables
// 3. Config file
// 4. Defaults - lowest priority
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LogLevel:  v.GetString(KeyLogLevel),
		LogFormat: v.GetString(KeyLogFormat),
		Relay: Relay{
			Listen:          v.GetString(KeyListen),
			AllowedOrigins:  splitList(v.GetStringSlice(KeyAllowedOrigins)),
			MaxMessageSize:  v.GetInt64(KeyMaxMessageSize),
			SendBuffer:      v.GetInt(KeySendBuffer),
			RateLimit:       v.GetFloat64(KeyRateLimit),
			RateBurst:       v.GetInt(KeyRateBurst),
			PongWait:        v.GetDuration(KeyPongWait),
			WriteWait:       v.GetDuration(KeyWriteWait),
			ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		},
		Client: Client{
			ServerURL:   v.GetString(KeyServerURL),
			Codec:       v.GetString(KeyCodec),
			VideoFile:   v.GetString(KeyVideoFile),
			AudioFile:   v.GetString(KeyAudioFile),
			ReceiveOnly: v.GetBool(KeyReceiveOnly),
			STUNServer:  v.GetString(KeySTUNServer),
			TURNServer:  v.GetString(KeyTURNServer),
			TURNUser:    v.GetString(KeyTURNUser),
			TURNPass:    v.GetString(KeyTURNPass),
			ForceRelay:  v.GetBool(KeyForceRelay),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Relay.Listen == "" {
		return errors.New("relay listen address is empty")
	}
	if c.Relay.PongWait <= c.Relay.WriteWait {
		return fmt.Errorf("relay pong wait %s must exceed write wait %s", c.Relay.PongWait, c.Relay.WriteWait)
	}
	if _, err := protocol.CodecByName(c.Client.Codec); err != nil {
		return err
	}
	if c.Client.ForceRelay && c.Client.TURNServer == "" {
		return fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return nil
}

// AllowsAnyOrigin reports whether the origin list contains "*".
func (r *Relay) AllowsAnyOrigin() bool {
	for _, o := range r.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.Contains(c.TURNServer, "?transport=") {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// splitList accepts both a real list and a single comma separated string,
// which is what an environment variable yields.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
