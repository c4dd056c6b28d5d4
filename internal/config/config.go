package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/zde37/ringkv/pkg/hash"
)

// AutoNodeID asks the node to derive its ID from the hostname.
const AutoNodeID = -1

// Config holds all configuration for a ring node
type Config struct {
	// Node identification
	NodeID int
	Host   string
	Port   int

	// HTTP API, disabled when zero
	HTTPPort int

	// Contact is the host:port of an existing ring member; empty starts a new ring
	Contact string

	// Ring view parameters
	MaxSuccessors int // Upper bound on the successor list
	ReplicaCount  int // Successors that receive a copy of every PUT

	// Join parameters
	JoinRetryInterval time.Duration // Delay between join attempts
	JoinTimeout       time.Duration // How long to wait for JOIN-OK

	// Liveness parameters
	PredecessorCheckInterval time.Duration
	SuccessorCheckInterval   time.Duration
	ProbeTimeout             time.Duration // First attempt timeout, doubled per retry
	ProbeAttempts            int

	// Suppression of recently evicted nodes
	SuppressionWindow   time.Duration
	SuppressionCapacity int

	// Duplicate request cache
	DedupWindow   time.Duration
	DedupCapacity int

	// Local key-value store
	StoreCapacity int

	// Logging
	LogLevel  string // trace, debug, info, warn, error
	LogFormat string // json, console
	LogFile   string // optional rotated log file
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		NodeID:                   AutoNodeID,
		Host:                     "127.0.0.1",
		Port:                     8440,
		HTTPPort:                 0,
		MaxSuccessors:            50,
		ReplicaCount:             3,
		JoinRetryInterval:        5 * time.Second,
		JoinTimeout:              15 * time.Second,
		PredecessorCheckInterval: 1 * time.Second,
		SuccessorCheckInterval:   1 * time.Second,
		ProbeTimeout:             1 * time.Second,
		ProbeAttempts:            3,
		SuppressionWindow:        30 * time.Second,
		SuppressionCapacity:      20,
		DedupWindow:              15 * time.Second,
		DedupCapacity:            50,
		StoreCapacity:            100,
		LogLevel:                 "info",
		LogFormat:                "console",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.NodeID != AutoNodeID && !hash.IsValidID(c.NodeID) {
		return fmt.Errorf("node ID must be in [0, %d), got %d", hash.RingSize, c.NodeID)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.Contact != "" {
		if _, _, err := ParseContact(c.Contact); err != nil {
			return err
		}
	}
	if c.MaxSuccessors <= 0 {
		return fmt.Errorf("max successors must be positive, got %d", c.MaxSuccessors)
	}
	if c.ReplicaCount < 0 || c.ReplicaCount > c.MaxSuccessors {
		return fmt.Errorf("replica count must be in [0, %d], got %d", c.MaxSuccessors, c.ReplicaCount)
	}
	if c.ProbeAttempts <= 0 {
		return fmt.Errorf("probe attempts must be positive, got %d", c.ProbeAttempts)
	}
	for name, d := range map[string]time.Duration{
		"join retry interval":        c.JoinRetryInterval,
		"join timeout":               c.JoinTimeout,
		"predecessor check interval": c.PredecessorCheckInterval,
		"successor check interval":   c.SuccessorCheckInterval,
		"probe timeout":              c.ProbeTimeout,
		"suppression window":         c.SuppressionWindow,
		"dedup window":               c.DedupWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SuppressionCapacity <= 0 || c.DedupCapacity <= 0 || c.StoreCapacity <= 0 {
		return fmt.Errorf("capacities must be positive")
	}
	return nil
}

// ResolveNodeID returns the configured node ID, or the hash of the hostname when unset.
func (c *Config) ResolveNodeID() (int, error) {
	if c.NodeID != AutoNodeID {
		return c.NodeID, nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return 0, fmt.Errorf("failed to read hostname: %w", err)
	}
	return hash.HashString(hostname), nil
}

// ParseContact splits a host:port contact address.
func ParseContact(contact string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(contact)
	if err != nil {
		return "", 0, fmt.Errorf("invalid contact %q: %w", contact, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid contact port in %q", contact)
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing contact host in %q", contact)
	}
	return host, port, nil
}
