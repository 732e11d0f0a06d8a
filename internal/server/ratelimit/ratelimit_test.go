package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		Endpoints: []EndpointConfig{
			{Path: "/ingest/", Method: "POST", Limit: 3, Window: time.Minute, Burst: 3},
		},
	}
}

func TestAllow_BurstThenLimited(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("1.2.3.4", "/ingest/pickles/webhook", "POST")
		assert.True(t, ok, "request %d inside burst", i)
	}
	ok, info := l.Allow("1.2.3.4", "/ingest/pickles/webhook", "POST")
	assert.False(t, ok)
	assert.Equal(t, 3, info.Limit)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestAllow_ClientsIsolated(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow("1.2.3.4", "/ingest/pickles/webhook", "POST")
	}
	ok, _ := l.Allow("5.6.7.8", "/ingest/pickles/webhook", "POST")
	assert.True(t, ok, "a fresh client has its own bucket")
}

func TestAllow_HealthUnlimited(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 500; i++ {
		ok, _ := l.Allow("1.2.3.4", "/health", "GET")
		require.True(t, ok)
	}
}

func TestAllow_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("1.2.3.4", "/ingest/x", "POST")
		require.True(t, ok)
	}
}

func TestMatchEndpoint_PrefixMatch(t *testing.T) {
	configs := DefaultEndpointConfigs()
	ep := matchEndpoint("/ingest/manheim/webhook", "POST", configs)
	require.NotNil(t, ep)
	assert.Equal(t, 60, ep.Limit)

	assert.Nil(t, matchEndpoint("/matches", "GET", configs))
}
