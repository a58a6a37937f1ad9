// Package config loads gateway configuration from the environment. There is
// no config file and no flags: the closed set of variables read by FromEnv
// is the entire configuration surface.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/iotaevm/gateway/chains"
)

// Config holds all process-wide configuration for the gateway.
type Config struct {
	// Host is the HTTP bind address. HOST env.
	Host string

	// Port is the HTTP listener port. PORT env.
	Port int

	// DefaultChainID selects the network used when a caller supplies none.
	// DEFAULT_CHAIN_ID env.
	DefaultChainID uint64

	// Siblings holds per-network settings keyed by sibling short name
	// (iota, shimmer, iota-testnet).
	Siblings map[string]SiblingConfig

	// TLS is optional mTLS material for upstream RPC connections.
	// SSL_CERT_PATH / SSL_KEY_PATH / SSL_CA_PATH env.
	TLS TLSConfig

	// Debug raises log verbosity to debug. DEBUG env ("true"/"1").
	Debug bool
}

// SiblingConfig carries the per-sibling overrides. All fields are optional.
type SiblingConfig struct {
	// NodeURL overrides the built-in RPC endpoint. <SIBLING>_NODE_URL env.
	NodeURL string

	// JWTToken authenticates against a guarded RPC endpoint. Either a
	// literal JWT sent as-is, or a 32-byte hex secret used to mint
	// short-lived tokens per request. <SIBLING>_JWT_TOKEN env.
	JWTToken string

	// Mnemonic seeds the signer for this network. Never logged.
	// <SIBLING>_MNEMONIC env.
	Mnemonic string
}

// TLSConfig names the optional PEM files for upstream mTLS.
type TLSConfig struct {
	CertPath string
	KeyPath  string
	CAPath   string
}

// DefaultConfig returns a Config with sensible defaults. FromEnv starts
// from these and applies the environment on top.
func DefaultConfig() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           3000,
		DefaultChainID: chains.ChainIDIOTA,
		Siblings:       make(map[string]SiblingConfig),
	}
}

// siblingNames lists the networks that accept per-sibling env overrides.
var siblingNames = []string{
	chains.NetworkIOTA,
	chains.NetworkShimmer,
	chains.NetworkIOTATestnet,
}

// envPrefix maps a sibling short name to its env var prefix:
// "iota-testnet" -> "IOTA_TESTNET".
func envPrefix(shortName string) string {
	return strings.ToUpper(strings.ReplaceAll(shortName, "-", "_"))
}

// FromEnv builds a Config from the process environment. Unset variables
// keep their defaults; set-but-malformed variables are an error.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}
	if v := os.Getenv("DEFAULT_CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid DEFAULT_CHAIN_ID %q: %w", v, err)
		}
		cfg.DefaultChainID = id
	}
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	for _, name := range siblingNames {
		prefix := envPrefix(name)
		sc := SiblingConfig{
			NodeURL:  os.Getenv(prefix + "_NODE_URL"),
			JWTToken: os.Getenv(prefix + "_JWT_TOKEN"),
			Mnemonic: os.Getenv(prefix + "_MNEMONIC"),
		}
		if sc != (SiblingConfig{}) {
			cfg.Siblings[name] = sc
		}
	}

	cfg.TLS = TLSConfig{
		CertPath: os.Getenv("SSL_CERT_PATH"),
		KeyPath:  os.Getenv("SSL_KEY_PATH"),
		CAPath:   os.Getenv("SSL_CA_PATH"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("config: host must not be empty")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d", c.Port)
	}
	if c.DefaultChainID == 0 {
		return errors.New("config: default chain id must be greater than 0")
	}
	for name := range c.Siblings {
		known := false
		for _, s := range siblingNames {
			if s == name {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("config: unknown sibling network %q", name)
		}
	}
	// Cert and key only make sense together.
	if (c.TLS.CertPath == "") != (c.TLS.KeyPath == "") {
		return errors.New("config: SSL_CERT_PATH and SSL_KEY_PATH must be set together")
	}
	return nil
}

// ListenAddr returns the HTTP listen address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Sibling returns the per-sibling settings for a short name; the zero value
// when none were configured.
func (c *Config) Sibling(shortName string) SiblingConfig {
	return c.Siblings[shortName]
}

// RPCOverrides returns the sibling RPC URL overrides keyed by short name,
// in the shape the chain registry consumes.
func (c *Config) RPCOverrides() map[string]string {
	out := make(map[string]string)
	for name, sc := range c.Siblings {
		if sc.NodeURL != "" {
			out[name] = sc.NodeURL
		}
	}
	return out
}

// Enabled reports whether any TLS material was configured.
func (t TLSConfig) Enabled() bool {
	return t.CertPath != "" || t.KeyPath != "" || t.CAPath != ""
}

// Load reads the configured PEM files into a tls.Config for upstream RPC
// connections. Returns nil when no material is configured.
func (t TLSConfig) Load() (*tls.Config, error) {
	if !t.Enabled() {
		return nil, nil
	}
	tc := &tls.Config{MinVersion: tls.VersionTLS12}

	if t.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("config: load client cert: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	if t.CAPath != "" {
		pem, err := os.ReadFile(t.CAPath)
		if err != nil {
			return nil, fmt.Errorf("config: read ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("config: no certificates parsed from %s", t.CAPath)
		}
		tc.RootCAs = pool
	}
	return tc, nil
}
