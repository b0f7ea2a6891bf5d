// Package vault fetches operational secrets (market-data API keys, bot
// tokens, database passwords) from HashiCorp Vault, with environment
// variables as the fallback when Vault is disabled.
package vault

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/vault/api"

	"options-advisor/config"
)

// Client wraps the HashiCorp Vault KV v2 client. When Vault is disabled
// the client resolves secrets from the environment instead, so local
// development needs no Vault at all.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient creates a Vault client.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	c := &Client{
		config: cfg,
		cache:  make(map[string]string),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c.client = client
	return c, nil
}

// Secret resolves a named secret. Lookup order: cache, Vault KV (when
// enabled), then the environment variable fallback (the secret name
// upper-cased with dots replaced by underscores).
func (c *Client) Secret(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	if v, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	if c.config.Enabled && c.client != nil {
		v, err := c.readFromVault(ctx, name)
		if err == nil && v != "" {
			c.put(name, v)
			return v, nil
		}
		if err != nil {
			// Fall through to the environment; a Vault outage must not
			// take the advisor down.
			if env := envFallback(name); env != "" {
				return env, nil
			}
			return "", fmt.Errorf("secret %q: %w", name, err)
		}
	}

	if env := envFallback(name); env != "" {
		c.put(name, env)
		return env, nil
	}
	return "", fmt.Errorf("secret %q not found in vault or environment", name)
}

// SecretOrEmpty is Secret for optional values: missing resolves to "".
func (c *Client) SecretOrEmpty(ctx context.Context, name string) string {
	v, err := c.Secret(ctx, name)
	if err != nil {
		return ""
	}
	return v
}

func (c *Client) readFromVault(ctx context.Context, name string) (string, error) {
	secret, err := c.client.Logical().ReadWithContext(ctx, c.config.SecretPath)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", nil
	}

	// KV v2 nests the payload under "data".
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}
	if v, ok := data[name].(string); ok {
		return v, nil
	}
	return "", nil
}

func (c *Client) put(name, value string) {
	c.mu.Lock()
	c.cache[name] = value
	c.mu.Unlock()
}

func envFallback(name string) string {
	key := strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
	return os.Getenv(key)
}
