// Package secrets resolves API keys from Google Secret Manager at startup.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"

	"github.com/genmedia/mcpgen/internal/config"
)

// Accessor reads the payload of a secret version.
type Accessor interface {
	Access(ctx context.Context, name string) (string, error)
}

// Client is an Accessor backed by Secret Manager.
type Client struct {
	sm *secretmanager.Client
}

// NewClient opens a Secret Manager client. credentialsFile may be empty to use
// Application Default Credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if f := strings.TrimSpace(credentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	sm, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create secretmanager client: %w", err)
	}
	return &Client{sm: sm}, nil
}

// Access returns the trimmed payload of the named secret version.
func (c *Client) Access(ctx context.Context, name string) (string, error) {
	name = VersionName(name)
	resp, err := c.sm.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret %s has an empty payload", name)
	}
	return strings.TrimSpace(string(resp.Payload.Data)), nil
}

// Close releases the client.
func (c *Client) Close() error {
	return c.sm.Close()
}

// VersionName appends "/versions/latest" to a bare secret name.
func VersionName(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if strings.Contains(name, "/versions/") {
		return name
	}
	return name + "/versions/latest"
}

// Needed reports whether cfg references any secret.
func Needed(cfg *config.Config) bool {
	return cfg.APIKeySecret != "" || cfg.Gemini.APIKeySecret != ""
}

// Apply overwrites the configured API keys with their Secret Manager values.
// Every referenced secret is attempted; failures are joined.
func Apply(ctx context.Context, cfg *config.Config, acc Accessor) error {
	var errs []error

	if name := cfg.APIKeySecret; name != "" {
		v, err := acc.Access(ctx, name)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("MCP_API_KEY_SECRET: %w", err))
		case v == "":
			errs = append(errs, errors.New("MCP_API_KEY_SECRET: secret is empty"))
		default:
			cfg.APIKey = v
			log.Printf("[secrets] MCP API key loaded from %s", VersionName(name))
		}
	}

	if name := cfg.Gemini.APIKeySecret; name != "" {
		v, err := acc.Access(ctx, name)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("GEMINI_API_KEY_SECRET: %w", err))
		case v == "":
			errs = append(errs, errors.New("GEMINI_API_KEY_SECRET: secret is empty"))
		default:
			cfg.Gemini.APIKey = v
			log.Printf("[secrets] Gemini API key loaded from %s", VersionName(name))
		}
	}

	return errors.Join(errs...)
}
