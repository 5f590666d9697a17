package postal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	t.Parallel()

	opts := (&Options{Host: "smtp.example.com"}).withDefaults()
	assert.Equal(t, DefaultPort, opts.Port)
	assert.Equal(t, "localhost", opts.Name)
	assert.Equal(t, 10*time.Second, opts.ConnectionTimeout)
	assert.Equal(t, 5*time.Second, opts.GreetingTimeout)
	assert.Equal(t, 60*time.Second, opts.SocketTimeout)
	assert.NotNil(t, opts.Logger)

	secure := (&Options{Host: "smtp.example.com", Secure: true}).withDefaults()
	assert.Equal(t, DefaultPortTLS, secure.Port)
}

func TestOptions_TLSConfig(t *testing.T) {
	t.Parallel()

	opts := &Options{Host: "smtp.example.com"}
	cfg := opts.tlsConfig()
	assert.Equal(t, "smtp.example.com", cfg.ServerName)
	assert.False(t, cfg.InsecureSkipVerify)

	opts.InsecureSkipVerify = true
	assert.True(t, opts.tlsConfig().InsecureSkipVerify)
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USERNAME", "user@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("SMTP_CONNECTION_TIMEOUT", "3s")

	opts, err := OptionsFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com", opts.Host)
	assert.Equal(t, 2525, opts.Port)
	assert.Equal(t, 3*time.Second, opts.ConnectionTimeout)
	assert.Equal(t, 5*time.Second, opts.GreetingTimeout)

	require.NotNil(t, opts.Auth)
	assert.Equal(t, "user@example.com", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
}

func TestOptionsFromEnv_NoAuth(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "")
	t.Setenv("SMTP_PASSWORD", "")
	t.Setenv("SMTP_ACCESS_TOKEN", "")

	opts, err := OptionsFromEnv()
	require.NoError(t, err)
	assert.Nil(t, opts.Auth)
}
