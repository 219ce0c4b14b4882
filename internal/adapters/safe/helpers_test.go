package safe

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// fakeProxyCode stands in for SafeProxyFactory.proxyCreationCode().
var fakeProxyCode = common.FromHex("0x608060405234801561001057600080fd5b50")

type fakeBackend struct {
	mu       sync.Mutex
	code     map[common.Address][]byte
	nonce    *big.Int
	tip      *big.Int
	price    *big.Int
	callErr  error
	ethCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		code:  make(map[common.Address][]byte),
		nonce: big.NewInt(0),
		tip:   big.NewInt(1_000_000),
		price: big.NewInt(10_000_000),
	}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ethCalls++
	if f.callErr != nil {
		return nil, f.callErr
	}

	switch string(msg.Data[:4]) {
	case string(proxyFactoryABI.Methods["proxyCreationCode"].ID):
		return proxyFactoryABI.Methods["proxyCreationCode"].Outputs.Pack(fakeProxyCode)
	case string(entryPointABI.Methods["getNonce"].ID):
		return entryPointABI.Methods["getNonce"].Outputs.Pack(f.nonce)
	}
	return nil, nil
}

func (f *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code[account], nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.price, nil }

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, nil }

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcServer is a minimal JSON-RPC 2.0 endpoint keyed by method name.
type rpcServer struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]func(params []json.RawMessage) (interface{}, *rpcErr)
	calls    map[string]int
	lastReq  map[string][]json.RawMessage
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newRPCServer(t *testing.T) (*rpcServer, *httptest.Server) {
	t.Helper()
	s := &rpcServer{
		t:        t,
		handlers: make(map[string]func([]json.RawMessage) (interface{}, *rpcErr)),
		calls:    make(map[string]int),
		lastReq:  make(map[string][]json.RawMessage),
	}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *rpcServer) handle(method string, fn func(params []json.RawMessage) (interface{}, *rpcErr)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

func (s *rpcServer) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *rpcServer) params(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq[method]
}

func (s *rpcServer) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))

	s.mu.Lock()
	s.calls[req.Method]++
	s.lastReq[req.Method] = req.Params
	fn := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if fn == nil {
		resp["error"] = rpcErr{Code: -32601, Message: "method not found"}
	} else if result, err := fn(req.Params); err != nil {
		resp["error"] = err
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(s.t, json.NewEncoder(w).Encode(resp))
}
