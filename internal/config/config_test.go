package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/ringkv/pkg/hash"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotNil(t, cfg)
	assert.Equal(t, 50, cfg.MaxSuccessors)
	assert.Equal(t, 3, cfg.ReplicaCount)
	assert.Equal(t, 30*time.Second, cfg.SuppressionWindow)
	assert.Equal(t, 15*time.Second, cfg.DedupWindow)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "explicit node id",
			mutate: func(c *Config) { c.NodeID = 42 },
		},
		{
			name:    "node id outside ring",
			mutate:  func(c *Config) { c.NodeID = hash.RingSize },
			wantErr: true,
		},
		{
			name:    "invalid port (negative)",
			mutate:  func(c *Config) { c.Port = -1 },
			wantErr: true,
		},
		{
			name:    "invalid port (too large)",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: true,
		},
		{
			name:   "any free port",
			mutate: func(c *Config) { c.Port = 0 },
		},
		{
			name:   "http disabled",
			mutate: func(c *Config) { c.HTTPPort = 0 },
		},
		{
			name:    "invalid http port",
			mutate:  func(c *Config) { c.HTTPPort = 70000 },
			wantErr: true,
		},
		{
			name:   "valid contact",
			mutate: func(c *Config) { c.Contact = "10.0.0.1:9000" },
		},
		{
			name:    "contact without port",
			mutate:  func(c *Config) { c.Contact = "10.0.0.1" },
			wantErr: true,
		},
		{
			name:    "replicas exceed successors",
			mutate:  func(c *Config) { c.ReplicaCount = c.MaxSuccessors + 1 },
			wantErr: true,
		},
		{
			name:    "zero probe attempts",
			mutate:  func(c *Config) { c.ProbeAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "zero check interval",
			mutate:  func(c *Config) { c.SuccessorCheckInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero store capacity",
			mutate:  func(c *Config) { c.StoreCapacity = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseContact(t *testing.T) {
	host, port, err := ParseContact("node-a:7000")
	require.NoError(t, err)
	assert.Equal(t, "node-a", host)
	assert.Equal(t, 7000, port)

	for _, bad := range []string{"", "node-a", ":7000", "node-a:0", "node-a:http"} {
		_, _, err := ParseContact(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolveNodeID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = 12
	id, err := cfg.ResolveNodeID()
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	cfg.NodeID = AutoNodeID
	id, err = cfg.ResolveNodeID()
	require.NoError(t, err)
	assert.True(t, hash.IsValidID(id))
}
