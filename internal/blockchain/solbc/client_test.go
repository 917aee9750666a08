package solbc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/solana-tg-bot/internal/wallet"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// fakeRPC answers JSON-RPC calls from a per-method script.
type fakeRPC struct {
	mu      sync.Mutex
	calls   map[string]int
	answers map[string]func(call int) (result interface{}, rpcErr map[string]interface{})
}

func (f *fakeRPC) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[req.Method]++
	n := f.calls[req.Method]
	f.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	answer, ok := f.answers[req.Method]
	if !ok {
		resp["error"] = map[string]interface{}{"code": -32601, "message": "Method not found: " + req.Method}
	} else if result, rpcErr := answer(n); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeRPC) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newTestClient(t *testing.T, f *fakeRPC) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, zaptest.NewLogger(t))
}

func withContext(value interface{}) map[string]interface{} {
	return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": value}
}

func TestClient_Balance(t *testing.T) {
	c := newTestClient(t, &fakeRPC{answers: map[string]func(int) (interface{}, map[string]interface{}){
		"getBalance": func(int) (interface{}, map[string]interface{}) { return withContext(1_500_000_000), nil },
	}})

	lamports, err := c.Balance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)
}

func TestClient_TokenBalance(t *testing.T) {
	mint := solana.NewWallet().PublicKey().String()
	c := newTestClient(t, &fakeRPC{answers: map[string]func(int) (interface{}, map[string]interface{}){
		"getTokenAccountBalance": func(int) (interface{}, map[string]interface{}) {
			return withContext(map[string]interface{}{
				"amount": "2500000", "decimals": 6, "uiAmount": 2.5, "uiAmountString": "2.5",
			}), nil
		},
	}})

	amount, err := c.TokenBalance(context.Background(), solana.NewWallet().PublicKey(), mint)
	require.NoError(t, err)
	assert.Equal(t, 2.5, amount)

	_, err = c.TokenBalance(context.Background(), solana.NewWallet().PublicKey(), "not-a-mint")
	assert.ErrorContains(t, err, "invalid token address")
}

func TestClient_TokenBalance_MissingAccountIsZero(t *testing.T) {
	c := newTestClient(t, &fakeRPC{answers: map[string]func(int) (interface{}, map[string]interface{}){
		"getTokenAccountBalance": func(int) (interface{}, map[string]interface{}) {
			return nil, map[string]interface{}{"code": -32602, "message": "Invalid param: could not find account"}
		},
	}})

	amount, err := c.TokenBalance(context.Background(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey().String())
	require.NoError(t, err)
	assert.Zero(t, amount)
}

func blockhashAnswer(int) (interface{}, map[string]interface{}) {
	return withContext(map[string]interface{}{
		"blockhash":            solana.HashFromBytes(make([]byte, 32)).String(),
		"lastValidBlockHeight": 100,
	}), nil
}

func TestClient_Transfer_RetriesStaleBlockhash(t *testing.T) {
	sig := solana.SignatureFromBytes(make([]byte, 64)).String()
	rpc := &fakeRPC{answers: map[string]func(int) (interface{}, map[string]interface{}){
		"getLatestBlockhash": blockhashAnswer,
		"sendTransaction": func(call int) (interface{}, map[string]interface{}) {
			if call == 1 {
				return nil, map[string]interface{}{"code": -32002, "message": "Transaction simulation failed: BlockhashNotFound"}
			}
			return sig, nil
		},
	}}
	c := newTestClient(t, rpc)

	from, err := wallet.NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	txID, err := c.Transfer(context.Background(), from, solana.NewWallet().PublicKey(), 1_000)
	require.NoError(t, err)
	assert.Equal(t, sig, txID)
	assert.Equal(t, 2, rpc.Calls("sendTransaction"))
	assert.Equal(t, 2, rpc.Calls("getLatestBlockhash"), "fresh blockhash per attempt")
}

func TestClient_Transfer_OtherErrorsArePermanent(t *testing.T) {
	rpc := &fakeRPC{answers: map[string]func(int) (interface{}, map[string]interface{}){
		"getLatestBlockhash": blockhashAnswer,
		"sendTransaction": func(int) (interface{}, map[string]interface{}) {
			return nil, map[string]interface{}{"code": -32002, "message": "insufficient funds for rent"}
		},
	}}
	c := newTestClient(t, rpc)

	from, err := wallet.NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	_, err = c.Transfer(context.Background(), from, solana.NewWallet().PublicKey(), 1_000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction failed")
	assert.Equal(t, 1, rpc.Calls("sendTransaction"))
}

func TestIsAccountNotFoundError(t *testing.T) {
	assert.False(t, IsAccountNotFoundError(nil))
	assert.True(t, IsAccountNotFoundError(ErrAccountNotFound))
	assert.True(t, IsAccountNotFoundError(fmt.Errorf("wrap: %w", ErrAccountNotFound)))
	assert.True(t, IsAccountNotFoundError(fmt.Errorf("Could not find account")))
	assert.False(t, IsAccountNotFoundError(fmt.Errorf("timeout")))
}
