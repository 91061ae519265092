package clob

import (
	"context"
	"net/http"

	"github.com/GoPolymarket/polyclob/internal/auth"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
)

func (c *Client) walletCall(ctx context.Context, method, path string, nonce uint64) (*auth.Credentials, error) {
	headers, err := c.Authenticator().WalletHeaders(nonce)
	if err != nil {
		return nil, err
	}
	var creds auth.Credentials
	if _, err := c.do(ctx, call{method: method, path: path, headers: headers}, &creds); err != nil {
		return nil, err
	}
	if creds.Key == "" || creds.Secret == "" || creds.Passphrase == "" {
		return nil, apperrors.New(apperrors.ErrProtocolDecode, "incomplete credentials in "+path+" response", nil)
	}
	return &creds, nil
}

// CreateAPIKey issues a new key for nonce. The secret is only ever returned
// here.
func (c *Client) CreateAPIKey(ctx context.Context, nonce uint64) (*auth.Credentials, error) {
	creds, err := c.walletCall(ctx, http.MethodPost, pathCreateAPIKey, nonce)
	if err != nil {
		return nil, err
	}
	c.log.Warn(auth.CredentialCreationWarning, "api_key", creds.Key)
	return creds, nil
}

// DeriveAPIKey recovers the key previously created for nonce.
func (c *Client) DeriveAPIKey(ctx context.Context, nonce uint64) (*auth.Credentials, error) {
	return c.walletCall(ctx, http.MethodGet, pathDeriveAPIKey, nonce)
}

// CreateOrDeriveAPIKey creates a key and falls back to deriving it when the
// exchange refuses, typically because one already exists for nonce.
func (c *Client) CreateOrDeriveAPIKey(ctx context.Context, nonce uint64) (*auth.Credentials, error) {
	creds, err := c.CreateAPIKey(ctx, nonce)
	if err == nil {
		return creds, nil
	}
	if apperrors.IsType(err, apperrors.ErrAuthUnavailable) {
		return nil, err
	}
	c.log.Info("Create API key failed, deriving instead", "error", err)
	return c.DeriveAPIKey(ctx, nonce)
}

// APIKeys lists the keys owned by the signer.
func (c *Client) APIKeys(ctx context.Context) ([]string, error) {
	headers, err := c.l2(http.MethodGet, pathAPIKeys, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		APIKeys []string `json:"apiKeys"`
	}
	if _, err := c.do(ctx, call{method: http.MethodGet, path: pathAPIKeys, headers: headers}, &out); err != nil {
		return nil, err
	}
	return out.APIKeys, nil
}
