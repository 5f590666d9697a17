package postal

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Default ports for mail submission.
const (
	// DefaultPort is used for plaintext connections upgraded via STARTTLS.
	DefaultPort = 587
	// DefaultPortTLS is used for implicit TLS connections.
	DefaultPortTLS = 465
)

// Auth holds authentication credentials. Type forces a specific SASL
// mechanism; when empty the client negotiates one from the server's
// advertised set.
type Auth struct {
	Type        string
	Username    string
	Password    string
	AccessToken string
}

// Events is the explicit notification channel for connection activity. All
// callbacks are optional; nil callbacks are simply not invoked. Callbacks run
// on the calling goroutine and should return quickly.
type Events struct {
	// OnError is invoked when a failure tears the connection down: any error
	// while connecting (dial, greeting, EHLO, STARTTLS, AUTH) and transport
	// failures during a send.
	OnError func(err error)

	// OnClose is invoked once when the connection is destroyed.
	OnClose func()

	// OnCommand is invoked with every command line written to the server.
	// AUTH exchanges are redacted to "AUTH ***".
	OnCommand func(line string)
}

func (e *Events) emitError(err error) {
	if e != nil && e.OnError != nil {
		e.OnError(err)
	}
}

func (e *Events) emitClose() {
	if e != nil && e.OnClose != nil {
		e.OnClose()
	}
}

func (e *Events) emitCommand(line string) {
	if e != nil && e.OnCommand != nil {
		e.OnCommand(line)
	}
}

// Options configures a Client.
type Options struct {
	// Host is the submission server hostname. Required.
	Host string

	// Port defaults to 465 when Secure is set, 587 otherwise.
	Port int

	// Secure selects implicit TLS for the initial connection.
	Secure bool

	// Name is the hostname announced in EHLO/HELO (default: "localhost").
	Name string

	// Auth holds credentials; nil disables authentication.
	Auth *Auth

	// TLSConfig overrides the TLS configuration used for implicit TLS and
	// STARTTLS. ServerName defaults to Host.
	TLSConfig *tls.Config

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool

	// DisableSTARTTLS keeps the connection plaintext even when the server
	// advertises STARTTLS.
	DisableSTARTTLS bool

	// ConnectionTimeout covers the TCP dial and TLS handshake (default: 10s).
	ConnectionTimeout time.Duration

	// GreetingTimeout covers the wait for the 220 greeting (default: 5s).
	GreetingTimeout time.Duration

	// SocketTimeout is the idle watchdog applied to every read and write on
	// the live socket (default: 60s).
	SocketTimeout time.Duration

	// Logger is the structured logger for the client.
	// Default: slog.Default()
	Logger *slog.Logger

	// Events receives connection notifications.
	Events *Events
}

// withDefaults returns a copy of o with unset fields defaulted.
func (o *Options) withDefaults() *Options {
	opts := *o

	if opts.Port == 0 {
		if opts.Secure {
			opts.Port = DefaultPortTLS
		} else {
			opts.Port = DefaultPort
		}
	}
	if opts.Name == "" {
		opts.Name = "localhost"
	}
	if opts.ConnectionTimeout == 0 {
		opts.ConnectionTimeout = 10 * time.Second
	}
	if opts.GreetingTimeout == 0 {
		opts.GreetingTimeout = 5 * time.Second
	}
	if opts.SocketTimeout == 0 {
		opts.SocketTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &opts
}

// tlsConfig resolves the TLS configuration for the connection, defaulting the
// SNI server name to the target host.
func (o *Options) tlsConfig() *tls.Config {
	cfg := o.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	cfg = cfg.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = o.Host
	}
	if o.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// envOptions is the environment shape parsed by OptionsFromEnv.
type envOptions struct {
	Host              string        `env:"SMTP_HOST,required"`
	Port              int           `env:"SMTP_PORT"`
	Secure            bool          `env:"SMTP_SECURE"`
	Name              string        `env:"SMTP_NAME"`
	Username          string        `env:"SMTP_USERNAME"`
	Password          string        `env:"SMTP_PASSWORD"`
	AccessToken       string        `env:"SMTP_ACCESS_TOKEN"`
	AuthType          string        `env:"SMTP_AUTH_TYPE"`
	SkipVerify        bool          `env:"SMTP_TLS_SKIP_VERIFY"`
	DisableSTARTTLS   bool          `env:"SMTP_DISABLE_STARTTLS"`
	ConnectionTimeout time.Duration `env:"SMTP_CONNECTION_TIMEOUT" envDefault:"10s"`
	GreetingTimeout   time.Duration `env:"SMTP_GREETING_TIMEOUT" envDefault:"5s"`
	SocketTimeout     time.Duration `env:"SMTP_SOCKET_TIMEOUT" envDefault:"60s"`
}

// OptionsFromEnv builds Options from SMTP_* environment variables, loading a
// .env file first when one is present.
func OptionsFromEnv() (*Options, error) {
	_ = godotenv.Load()

	var cfg envOptions
	if err := env.Parse(&cfg); err != nil {
		return nil, wrapError(KindInvalidConfig, "invalid SMTP environment configuration", err)
	}

	opts := &Options{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Secure:             cfg.Secure,
		Name:               cfg.Name,
		InsecureSkipVerify: cfg.SkipVerify,
		DisableSTARTTLS:    cfg.DisableSTARTTLS,
		ConnectionTimeout:  cfg.ConnectionTimeout,
		GreetingTimeout:    cfg.GreetingTimeout,
		SocketTimeout:      cfg.SocketTimeout,
	}

	if cfg.Username != "" || cfg.AccessToken != "" {
		opts.Auth = &Auth{
			Type:        cfg.AuthType,
			Username:    cfg.Username,
			Password:    cfg.Password,
			AccessToken: cfg.AccessToken,
		}
	}

	return opts, nil
}
