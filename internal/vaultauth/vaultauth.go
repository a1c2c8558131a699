// Package vaultauth implements marketdata.AuthProvider over HashiCorp
// Vault's KV v2 secrets engine: the exchange wallet address and signing
// credentials live in Vault rather than in EngineConfig or the process
// environment. Grounded on the teacher's internal/vault/client.go
// (Client{client *api.Client, cache map[string]*APIKeyData}, the
// cfg.Enabled escape hatch that runs the service against an in-memory
// cache only, secretPath/cacheKey helpers), narrowed from Vault's
// multi-user multi-exchange key space to one engine-wide credential set.
package vaultauth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
	"github.com/hyperdesk/perpcore/internal/enginerr"
	"github.com/rs/zerolog"
)

// Config mirrors the teacher's config.VaultConfig fields.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string // KV v2 mount, e.g. "secret"
	SecretPath string // path under the mount, e.g. "perpcore/exchange"
	TLSEnabled bool
	CACert     string
}

// Credentials is the signing material TradeGate/PositionManager's
// ExchangeClient implementation needs.
type Credentials struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
	IsTestnet  bool   `json:"is_testnet"`
}

// Provider implements marketdata.AuthProvider against Vault KV v2, with an
// in-memory fallback when Vault is disabled (local/dev runs).
type Provider struct {
	client *api.Client
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	cache *Credentials
}

func New(cfg Config, logger zerolog.Logger) (*Provider, error) {
	logger = logger.With().Str("component", "VaultAuth").Logger()
	if !cfg.Enabled {
		logger.Warn().Msg("vault disabled, credentials must be seeded via SetCredentials for local/dev use")
		return &Provider{cfg: cfg, logger: logger}, nil
	}

	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultCfg.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("vaultauth: configure tls: %w", err)
		}
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("vaultauth: new client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Provider{client: client, cfg: cfg, logger: logger}, nil
}

// SetCredentials seeds the in-memory cache directly, for local/dev runs
// with Vault disabled.
func (p *Provider) SetCredentials(c Credentials) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = &c
}

func (p *Provider) secretPath() string {
	return fmt.Sprintf("%s/data/%s", p.cfg.MountPath, p.cfg.SecretPath)
}

func (p *Provider) load(ctx context.Context) (*Credentials, error) {
	p.mu.RLock()
	if p.cache != nil {
		cached := *p.cache
		p.mu.RUnlock()
		return &cached, nil
	}
	p.mu.RUnlock()

	if !p.cfg.Enabled {
		return nil, fmt.Errorf("vaultauth: vault disabled and no credentials seeded")
	}

	secret, err := p.client.Logical().ReadWithContext(ctx, p.secretPath())
	if err != nil {
		return nil, fmt.Errorf("vaultauth: read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vaultauth: credentials not found at %s", p.secretPath())
	}
	raw, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vaultauth: malformed secret at %s", p.secretPath())
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("vaultauth: marshal secret data: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(payload, &creds); err != nil {
		return nil, fmt.Errorf("vaultauth: unmarshal credentials: %w", err)
	}

	p.mu.Lock()
	p.cache = &creds
	p.mu.Unlock()
	return &creds, nil
}

// IsReady reports whether credentials can currently be loaded, without
// exercising the exchange connection itself.
func (p *Provider) IsReady(ctx context.Context) bool {
	_, err := p.load(ctx)
	return err == nil
}

// TestConnection loads credentials (served from the in-memory cache once a
// load has succeeded, so Vault is not read again) and wraps any failure as
// a typed AuthError.
func (p *Provider) TestConnection(ctx context.Context) error {
	if _, err := p.load(ctx); err != nil {
		return enginerr.Wrap(enginerr.KindAuth, "vault credential load failed", err)
	}
	return nil
}

func (p *Provider) GetAddress() string {
	creds, err := p.load(context.Background())
	if err != nil {
		return ""
	}
	return creds.Address
}

func (p *Provider) GetBalanceAddress() string {
	return p.GetAddress()
}

// PrivateKey exposes the signing key for wiring into the concrete
// exchange client's signer. Not part of marketdata.AuthProvider — callers
// that need it type-assert to *Provider.
func (p *Provider) PrivateKey(ctx context.Context) (string, error) {
	creds, err := p.load(ctx)
	if err != nil {
		return "", err
	}
	return creds.PrivateKey, nil
}
