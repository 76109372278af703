package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[server]
host = "0.0.0.0"
port = 9090
admin_port = 4001

[protocols]
library_path = "/opt/neo6/plugins"
auto_load = true
enabled = ["rest", "tcp"]

[security]
jwt_secret = "${NEO6_TEST_JWT_SECRET}"

[logging]
level = "debug"
format = "text"

[circuit_breaker]
enabled = true
failure_threshold = 0.6
`

func TestLoadBytesAppliesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(`[server]
port = 9090
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4001, cfg.Server.AdminPort)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 0.5, cfg.CircuitBreaker.FailureThreshold)
}

func TestLoadBytesExpandsEnv(t *testing.T) {
	require.NoError(t, os.Setenv("NEO6_TEST_JWT_SECRET", "s3cr3t"))
	defer os.Unsetenv("NEO6_TEST_JWT_SECRET")

	cfg, err := LoadBytes([]byte(sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.Security.JWTSecret)
}

func TestLoadBytesRejectsSamePorts(t *testing.T) {
	_, err := LoadBytes([]byte(`[server]
port = 8080
admin_port = 8080
`))
	assert.Error(t, err)
}

func TestLoadBytesRejectsBadLoggingFormat(t *testing.T) {
	_, err := LoadBytes([]byte(`[logging]
format = "xml"
`))
	assert.Error(t, err)
}

func TestLoadBytesTLSRequiresCertAndKey(t *testing.T) {
	_, err := LoadBytes([]byte(`[security]
tls_enabled = true
`))
	assert.Error(t, err)
}

func TestLoadBytesMalformedTOML(t *testing.T) {
	_, err := LoadBytes([]byte("not valid [[[ toml"))
	assert.Error(t, err)
}

func TestParsePort(t *testing.T) {
	n, err := ParsePort("8443")
	require.NoError(t, err)
	assert.Equal(t, 8443, n)

	_, err = ParsePort("not-a-port")
	assert.Error(t, err)

	_, err = ParsePort("70000")
	assert.Error(t, err)
}
