package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
region: us-west-2
retry:
  mode: adaptive
  max_attempts: 5
  initial_backoff: 500ms
  max_backoff: 10s
stalled_stream:
  enabled: true
  grace_period: 3s
minimum_throughput:
  enabled: true
  bytes: 1024
  per: 1s
  window: 2s
identity_cache:
  refresh_margin: 30s
  allow_stale: true
  stale_grace: 1m
signing:
  service: s3
  double_uri_encode: false
  presign_expires: 1h
circuit_breaker:
  enabled: true
  max_failures: 10
`

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	layer, err := LoadFile(path)
	require.NoError(t, err)
	assert.Contains(t, layer.Name, "client.yaml")

	cfg, err := Resolve(Defaults(), layer)
	require.NoError(t, err)

	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, RetryModeAdaptive, cfg.Retry.Mode)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 3*time.Second, cfg.StalledStream.GracePeriod)
	assert.Equal(t, int64(1024), cfg.MinimumThroughput.Bytes)
	assert.Equal(t, 2*time.Second, cfg.MinimumThroughput.Window)
	assert.True(t, cfg.IdentityCache.AllowStale)
	assert.Equal(t, time.Minute, cfg.IdentityCache.StaleGrace)
	assert.Equal(t, "s3", cfg.Signing.Service)
	assert.Equal(t, time.Hour, cfg.Signing.PresignExpires)
	assert.Equal(t, uint32(10), cfg.CircuitBreaker.MaxFailures)
}

func TestLoadFile_NotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadFile("/nonexistent/client.yaml")
	assert.Error(t, err)
}

func TestLoadReader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed", content: "retry: [unclosed"},
		{name: "unknown field", content: "retries:\n  max_attempts: 2\n"},
		{name: "bad duration", content: "retry:\n  initial_backoff: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadReader(strings.NewReader(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadReader_Empty(t *testing.T) {
	t.Parallel()

	layer, err := LoadReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, layer.Retry)
}

func TestLoadReader_ZeroAttemptsFailsOnResolve(t *testing.T) {
	t.Parallel()

	layer, err := LoadReader(strings.NewReader("retry:\n  max_attempts: 0\n"))
	require.NoError(t, err)

	_, err = Resolve(Defaults(), layer)
	assert.ErrorIs(t, err, ErrMaxAttemptsMustNotBeZero)
	assert.Contains(t, err.Error(), "config reader")
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("AVASDK_TEST_REGION", "eu-central-1")

	out := substituteEnvVars("a: ${AVASDK_TEST_REGION}\nb: ${AVASDK_TEST_UNSET:-fallback}\nc: $${LITERAL}\nd: ${AVASDK_TEST_UNSET}")

	assert.Equal(t, "a: eu-central-1\nb: fallback\nc: ${LITERAL}\nd: ", out)
}

func TestDuration_YAMLAndJSON(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	assert.Zero(t, d.Duration())

	assert.Error(t, d.UnmarshalJSON([]byte(`"forever"`)))

	b, err := Duration(2 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(b))

	y, err := Duration(time.Minute).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m0s", y)
}
