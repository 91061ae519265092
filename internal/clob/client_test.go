package clob

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/GoPolymarket/polyclob/internal/auth"
	"github.com/GoPolymarket/polyclob/internal/contracts"
	"github.com/GoPolymarket/polyclob/internal/order"
	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/signer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	testTokenID    = "52114319501245915516055106046884209969926127482827954674443846427813813222426"
)

var testCreds = auth.Credentials{Key: "key-1", Secret: "c2VjcmV0LXNlY3JldC1zZWNyZXQ=", Passphrase: "pass"}

type fakeExchange struct {
	t    *testing.T
	mux  *http.ServeMux
	srv  *httptest.Server
	hits atomic.Int32

	mu     sync.Mutex
	counts map[string]int
}

func newFakeExchange(t *testing.T) *fakeExchange {
	f := &fakeExchange{t: t, mux: http.NewServeMux(), counts: map[string]int{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.mu.Lock()
		f.counts[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeExchange) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// checkL2 checks the HMAC against the body exactly as received.
func checkL2(t *testing.T, r *http.Request) []byte {
	body, err := io.ReadAll(r.Body)
	assert.NoError(t, err)
	want, err := auth.BuildHMACSignature(testCreds.Secret, r.Header.Get(auth.HeaderTimestamp), r.Method, r.URL.Path, body)
	assert.NoError(t, err)
	assert.Equal(t, want, r.Header.Get(auth.HeaderSignature))
	assert.Equal(t, testCreds.Key, r.Header.Get(auth.HeaderAPIKey))
	assert.Equal(t, testCreds.Passphrase, r.Header.Get(auth.HeaderPassphrase))
	return body
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newClient(t *testing.T, host string, tier auth.Tier, opts ...Option) *Client {
	t.Helper()
	var a *auth.Authenticator
	switch tier {
	case auth.L0:
		a = auth.NewAuthenticator(nil, nil)
	default:
		s, err := signer.NewSigner(testPrivateKey, contracts.Polygon)
		require.NoError(t, err)
		var creds *auth.Credentials
		if tier == auth.L2 {
			creds = &testCreds
		}
		a = auth.NewAuthenticator(s, creds)
	}
	c, err := New(host, a, append([]Option{WithLogger(quiet())}, opts...)...)
	require.NoError(t, err)
	return c
}

type recordedOrder struct {
	salt      string
	orderType order.OrderType
	status    string
	response  string
}

type fakeRecorder struct {
	mu   sync.Mutex
	rows []recordedOrder
}

func (r *fakeRecorder) Record(_ context.Context, o *order.SignedOrder, t order.OrderType, status string, resp []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, recordedOrder{salt: o.Salt, orderType: t, status: status, response: string(resp)})
	return nil
}

func TestPublicEndpointsAreCached(t *testing.T) {
	f := newFakeExchange(t)
	f.mux.HandleFunc("/time", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("1700000000")) })
	f.mux.HandleFunc("/tick-size", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testTokenID, r.URL.Query().Get("token_id"))
		writeJSON(w, 200, map[string]any{"minimum_tick_size": 0.01})
	})
	f.mux.HandleFunc("/neg-risk", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"neg_risk": true})
	})
	f.mux.HandleFunc("/fee-rate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"base_fee": 25})
	})

	c := newClient(t, f.srv.URL, auth.L0)
	ctx := context.Background()

	ts, err := c.ServerTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)

	for i := 0; i < 2; i++ {
		tick, err := c.TickSize(ctx, testTokenID)
		require.NoError(t, err)
		assert.Equal(t, "0.01", tick)

		neg, err := c.NegRisk(ctx, testTokenID)
		require.NoError(t, err)
		assert.True(t, neg)

		fee, err := c.FeeRateBps(ctx, testTokenID)
		require.NoError(t, err)
		assert.Equal(t, uint64(25), fee)
	}
	assert.Equal(t, 1, f.count("GET /tick-size"))
	assert.Equal(t, 1, f.count("GET /neg-risk"))
	assert.Equal(t, 1, f.count("GET /fee-rate"))
}

func TestMissingBaseFeeIsZero(t *testing.T) {
	f := newFakeExchange(t)
	f.mux.HandleFunc("/fee-rate", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, 200, map[string]any{}) })

	fee, err := newClient(t, f.srv.URL, auth.L0).FetchFeeRateBps(context.Background(), "1")
	require.NoError(t, err)
	assert.Zero(t, fee)
}

func TestTierGatingHappensBeforeNetwork(t *testing.T) {
	f := newFakeExchange(t)
	ctx := context.Background()

	l0 := newClient(t, f.srv.URL, auth.L0)
	_, err := l0.CreateAPIKey(ctx, 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthUnavailable))
	assert.Contains(t, err.Error(), auth.L1AuthUnavailableMessage)
	_, err = l0.CreateOrDeriveAPIKey(ctx, 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthUnavailable))
	_, err = l0.CreateOrder(ctx, order.Intent{TokenID: testTokenID})
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthUnavailable))

	l1 := newClient(t, f.srv.URL, auth.L1)
	_, err = l1.APIKeys(ctx)
	assert.Contains(t, err.Error(), auth.L2AuthUnavailableMessage)
	_, err = l1.CancelAll(ctx)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthUnavailable))
	_, err = l1.CancelOrder(ctx, "0x1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthUnavailable))
	_, _, err = l1.CreateAndPostOrder(ctx, order.Intent{TokenID: testTokenID}, order.GTC)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthUnavailable))
	_, err = l1.PostOrder(ctx, &order.SignedOrder{}, order.GTC)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthUnavailable))

	assert.Zero(t, f.hits.Load())
}

func TestCreateOrDeriveFallsBackToDerive(t *testing.T) {
	f := newFakeExchange(t)
	var sawNonce string
	f.mux.HandleFunc("/auth/api-key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "key already exists"})
	})
	f.mux.HandleFunc("/auth/derive-api-key", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(auth.HeaderSignature))
		assert.NotEmpty(t, r.Header.Get(auth.HeaderAddress))
		sawNonce = r.Header.Get(auth.HeaderNonce)
		writeJSON(w, 200, testCreds)
	})

	c := newClient(t, f.srv.URL, auth.L1)
	creds, err := c.CreateOrDeriveAPIKey(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, testCreds, *creds)
	assert.Equal(t, "3", sawNonce)

	require.NoError(t, c.UseCredentials(*creds))
	assert.Equal(t, auth.L2, c.Tier())
}

func TestIncompleteCredentialsRejected(t *testing.T) {
	f := newFakeExchange(t)
	f.mux.HandleFunc("/auth/api-key", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"apiKey": "k"})
	})
	_, err := newClient(t, f.srv.URL, auth.L1).CreateAPIKey(context.Background(), 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrProtocolDecode))
}

func TestCreateAndPostOrder(t *testing.T) {
	f := newFakeExchange(t)
	f.mux.HandleFunc("/neg-risk", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"neg_risk": true})
	})
	f.mux.HandleFunc("/fee-rate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"base_fee": 10})
	})
	var posted order.Payload
	f.mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body := checkL2(t, r)
		assert.NoError(t, json.Unmarshal(body, &posted))
		writeJSON(w, 200, map[string]any{"success": true, "orderID": "0xabc", "status": "live"})
	})

	rec := &fakeRecorder{}
	c := newClient(t, f.srv.URL, auth.L2, WithRecorder(rec))

	o, res, err := c.CreateAndPostOrder(context.Background(), order.Intent{
		TokenID: testTokenID,
		Price:   decimal.RequireFromString("0.37"),
		Size:    decimal.RequireFromString("10"),
		Side:    order.Buy,
	}, order.GTD)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "0xabc", res.OrderID)
	assert.Equal(t, *o, posted.Order)
	assert.Equal(t, "10", posted.Order.FeeRateBps)
	assert.Equal(t, testCreds.Key, posted.Owner)
	assert.Equal(t, order.GTD, posted.OrderType)

	require.Len(t, rec.rows, 1)
	assert.Equal(t, "live", rec.rows[0].status)
	assert.Equal(t, o.Salt, rec.rows[0].salt)
	assert.Equal(t, order.GTD, rec.rows[0].orderType)
}

func TestPostOrderUpstreamError(t *testing.T) {
	f := newFakeExchange(t)
	f.mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "not enough balance"})
	})
	rec := &fakeRecorder{}
	c := newClient(t, f.srv.URL, auth.L2, WithRecorder(rec))

	o, err := c.Builder().CreateOrder(order.Intent{
		TokenID: testTokenID,
		Price:   decimal.RequireFromString("0.5"),
		Size:    decimal.RequireFromString("1"),
		Side:    order.Sell,
	}, order.Options{})
	require.NoError(t, err)

	_, err = c.PostOrder(context.Background(), o, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrUpstream))
	assert.Contains(t, err.Error(), "not enough balance")

	require.Len(t, rec.rows, 1)
	assert.Equal(t, "error", rec.rows[0].status)
	assert.Equal(t, order.GTC, rec.rows[0].orderType)
	assert.Contains(t, rec.rows[0].response, "not enough balance")

	_, err = c.PostOrder(context.Background(), o, order.OrderType("IOC"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))
}

func TestCancelEndpoints(t *testing.T) {
	f := newFakeExchange(t)
	f.mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		body := checkL2(t, r)
		assert.JSONEq(t, `{"orderID":"0x1"}`, string(body))
		writeJSON(w, 200, map[string]any{"canceled": []string{"0x1"}, "not_canceled": map[string]string{}})
	})
	f.mux.HandleFunc("/cancel-all", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		checkL2(t, r)
		writeJSON(w, 200, map[string]any{"canceled": []string{}, "not_canceled": map[string]string{"0x2": "matched"}})
	})
	f.mux.HandleFunc("/auth/api-keys", func(w http.ResponseWriter, r *http.Request) {
		checkL2(t, r)
		writeJSON(w, 200, map[string]any{"apiKeys": []string{"key-1"}})
	})

	c := newClient(t, f.srv.URL, auth.L2)
	ctx := context.Background()

	res, err := c.CancelOrder(ctx, "0x1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1"}, res.Canceled)

	_, err = c.CancelOrder(ctx, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrInvalidRequest))

	res, err = c.CancelAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "matched", res.NotCanceled["0x2"])

	keys, err := c.APIKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-1"}, keys)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	f := newFakeExchange(t)
	f.mux.HandleFunc("/time", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("1")) })
	c := newClient(t, f.srv.URL, auth.L0, WithRateLimit(0.001, 1))

	_, err := c.ServerTime(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ServerTime(ctx)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTransport))
	assert.Equal(t, int32(1), f.hits.Load())
}
