// Package auth computes the per-request header sets for the three trust tiers
// of the exchange API. Nothing here performs I/O; the only variance between
// calls comes from the clock and the caller supplied nonce.
package auth

import (
	"strconv"
	"time"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/pkg/metrics"
	"github.com/GoPolymarket/polyclob/internal/signer"
)

// Tier is the level of proof an endpoint requires.
type Tier int

const (
	L0 Tier = iota // no auth
	L1             // wallet signature
	L2             // API key
)

func (t Tier) String() string {
	switch t {
	case L1:
		return "L1"
	case L2:
		return "L2"
	default:
		return "L0"
	}
}

const (
	HeaderAddress    = "POLY_ADDRESS"
	HeaderSignature  = "POLY_SIGNATURE"
	HeaderTimestamp  = "POLY_TIMESTAMP"
	HeaderNonce      = "POLY_NONCE"
	HeaderAPIKey     = "POLY_API_KEY"
	HeaderPassphrase = "POLY_PASSPHRASE"
)

const (
	L1AuthUnavailableMessage = "A private key is needed to interact with this endpoint!"
	L2AuthUnavailableMessage = "API Credentials are needed to interact with this endpoint!"

	// CredentialCreationWarning is shown once after a new API key is issued.
	CredentialCreationWarning = "Your credentials CANNOT be recovered after they've been created. Be sure to store them safely!"
)

// Credentials are issued once by the exchange and never change.
type Credentials struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// Request describes an outbound call for signing purposes only. Body must be
// the exact bytes that go on the wire.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

type Headers map[string]string

// UnavailableError reports that the configured material does not reach Tier.
type UnavailableError struct {
	Tier Tier
	err  *apperrors.AppError
}

func newUnavailable(tier Tier) *UnavailableError {
	msg := L1AuthUnavailableMessage
	if tier == L2 {
		msg = L2AuthUnavailableMessage
	}
	return &UnavailableError{Tier: tier, err: apperrors.New(apperrors.ErrAuthUnavailable, msg, nil)}
}

func (e *UnavailableError) Error() string { return e.err.Error() }

func (e *UnavailableError) Unwrap() error { return e.err }

type Option func(*Authenticator)

// WithClock overrides the time source used for header timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

// Authenticator borrows a signer and optional credentials to produce headers.
type Authenticator struct {
	signer *signer.Signer
	creds  *Credentials
	now    func() time.Time
}

func NewAuthenticator(s *signer.Signer, creds *Credentials, opts ...Option) *Authenticator {
	a := &Authenticator{signer: s, now: time.Now}
	if creds != nil {
		c := *creds
		a.creds = &c
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Authenticator) Tier() Tier {
	if a.signer == nil {
		return L0
	}
	if a.creds == nil {
		return L1
	}
	return L2
}

func (a *Authenticator) Signer() *signer.Signer { return a.signer }

func (a *Authenticator) Credentials() *Credentials {
	if a.creds == nil {
		return nil
	}
	c := *a.creds
	return &c
}

// Require fails with an UnavailableError when the authenticator is below tier.
func (a *Authenticator) Require(tier Tier) error {
	if a.Tier() < tier {
		return newUnavailable(tier)
	}
	return nil
}

// WalletHeaders returns the L1 header set for nonce, stamped with the current time.
func (a *Authenticator) WalletHeaders(nonce uint64) (Headers, error) {
	if err := a.Require(L1); err != nil {
		return nil, err
	}
	return BuildWalletHeaders(a.signer, a.now().Unix(), nonce)
}

// APIKeyHeaders returns the L2 header set for req, stamped with the current time.
func (a *Authenticator) APIKeyHeaders(req Request) (Headers, error) {
	if err := a.Require(L2); err != nil {
		return nil, err
	}
	return BuildAPIKeyHeaders(a.signer, *a.creds, req, a.now().Unix())
}

// BuildWalletHeaders is the deterministic core of WalletHeaders.
func BuildWalletHeaders(s *signer.Signer, timestamp int64, nonce uint64) (Headers, error) {
	if s == nil {
		return nil, newUnavailable(L1)
	}
	ts := strconv.FormatInt(timestamp, 10)
	sig, err := s.SignClobAuth(ts, nonce)
	if err != nil {
		return nil, err
	}
	metrics.AuthHeadersTotal.WithLabelValues(L1.String()).Inc()
	return Headers{
		HeaderAddress:   s.Address().Hex(),
		HeaderSignature: sig,
		HeaderTimestamp: ts,
		HeaderNonce:     strconv.FormatUint(nonce, 10),
	}, nil
}

// BuildAPIKeyHeaders is the deterministic core of APIKeyHeaders.
func BuildAPIKeyHeaders(s *signer.Signer, creds Credentials, req Request, timestamp int64) (Headers, error) {
	if s == nil {
		return nil, newUnavailable(L2)
	}
	ts := strconv.FormatInt(timestamp, 10)
	sig, err := BuildHMACSignature(creds.Secret, ts, req.Method, req.Path, req.Body)
	if err != nil {
		return nil, err
	}
	metrics.AuthHeadersTotal.WithLabelValues(L2.String()).Inc()
	return Headers{
		HeaderAddress:    s.Address().Hex(),
		HeaderSignature:  sig,
		HeaderTimestamp:  ts,
		HeaderAPIKey:     creds.Key,
		HeaderPassphrase: creds.Passphrase,
	}, nil
}

// Enrich returns the union of base and extra; extra wins on collision.
func Enrich(base, extra Headers) Headers {
	out := make(Headers, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
