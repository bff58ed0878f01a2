package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	assert.Equal(t, "0.0.0.0:8080", cfg.GetString("server.listen_address"))
	assert.False(t, cfg.GetBool("server.development_mode"))
	assert.Equal(t, 5, cfg.GetInt("verification.max_attempts"))
	assert.Equal(t, 50, cfg.GetInt("reputation.batch_size"))
	assert.Equal(t, 3, cfg.GetInt("reports.escalation_confirmations"))
	assert.Equal(t, "memory", cfg.GetString("store.type"))
	assert.Equal(t, "US", cfg.GetString("reputation.domestic_country"))

	timeout, err := cfg.GetDuration("screening.signal_timeout")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, timeout)

	delay, err := cfg.GetDuration("reputation.batch_delay")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, delay)
}

func TestGetDurationInvalid(t *testing.T) {
	v := NewEmptyViper()
	v.Set("screening.signal_timeout", "not-a-duration")
	cfg := NewFromViper(v)

	_, err := cfg.GetDuration("screening.signal_timeout")
	assert.Error(t, err)
}

func TestUnmarshalKey(t *testing.T) {
	v := NewEmptyViper()
	v.Set("signals.carrier_table", []map[string]interface{}{
		{"prefix": "1202", "name": "Capital Wireless", "type": "voip", "country": "US", "ismobile": true},
	})
	cfg := NewFromViper(v)

	var entries []struct {
		Prefix   string
		Name     string
		Type     string
		Country  string
		IsMobile bool
	}
	require.NoError(t, cfg.UnmarshalKey("signals.carrier_table", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "1202", entries[0].Prefix)
	assert.True(t, entries[0].IsMobile)
}
