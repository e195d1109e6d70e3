package rpc

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/walletledger/internal/domain"
)

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode serves canned results per method. handle may write its own
// response; returning a non-nil value encodes it as the result.
type fakeNode struct {
	mu     sync.Mutex
	calls  []rpcCall
	handle func(w http.ResponseWriter, call rpcCall) any
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var call rpcCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls = append(n.calls, call)
	n.mu.Unlock()

	result := n.handle(w, call)
	if result == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, call := range n.calls {
		if call.Method == method {
			c++
		}
	}
	return c
}

func newTestClient(t *testing.T, node *fakeNode, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	cfg.URL = srv.URL
	return NewClient(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func paramString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func txResult(sig string) map[string]any {
	return map[string]any{
		"slot":      100,
		"blockTime": 1700000000,
		"meta": map[string]any{
			"err":         nil,
			"logMessages": []string{"Program log: " + sig},
		},
	}
}

func TestFetchSignatures_Pages(t *testing.T) {
	node := &fakeNode{}
	node.handle = func(w http.ResponseWriter, call rpcCall) any {
		var opts map[string]any
		require.NoError(t, json.Unmarshal(call.Params[1], &opts))
		assert.Equal(t, "s0", opts["until"])
		switch opts["before"] {
		case nil:
			return []map[string]any{{"signature": "s5", "slot": 5}, {"signature": "s4", "slot": 4}}
		case "s4":
			return []map[string]any{{"signature": "s3", "slot": 3}, {"signature": "s2", "slot": 2}}
		default:
			return []map[string]any{{"signature": "s1", "slot": 1, "err": map[string]any{"InstructionError": []any{0, "Custom"}}}}
		}
	}
	c := newTestClient(t, node, Config{PageSize: 2})

	sigs, err := c.FetchSignatures(context.Background(), "Wa11et", "s0")
	require.NoError(t, err)
	require.Len(t, sigs, 5)
	assert.Equal(t, "s5", sigs[0].Signature)
	assert.Equal(t, "s1", sigs[4].Signature)
	assert.True(t, sigs[4].Failed())
	assert.False(t, sigs[0].Failed())
	assert.Equal(t, 3, node.count("getSignaturesForAddress"))
}

// pagedHistory serves s5..s1 two per page below cursor s0 and answers
// getTransaction for any signature. failBefore makes the page requested with
// that "before" value fail.
func pagedHistory(t *testing.T, failBefore string) *fakeNode {
	node := &fakeNode{}
	node.handle = func(w http.ResponseWriter, call rpcCall) any {
		if call.Method == "getTransaction" {
			return txResult(paramString(t, call.Params[0]))
		}
		var opts map[string]any
		require.NoError(t, json.Unmarshal(call.Params[1], &opts))
		before, _ := opts["before"].(string)
		if failBefore != "" && before == failBefore {
			w.WriteHeader(http.StatusInternalServerError)
			return nil
		}
		switch before {
		case "":
			return []map[string]any{{"signature": "s5"}, {"signature": "s4"}}
		case "s4":
			return []map[string]any{{"signature": "s3"}, {"signature": "s2"}}
		default:
			return []map[string]any{{"signature": "s1"}}
		}
	}
	return node
}

func TestFetchSignatures_FailedPageFailsListing(t *testing.T) {
	node := pagedHistory(t, "s4")
	c := newTestClient(t, node, Config{PageSize: 2})

	sigs, err := c.FetchSignatures(context.Background(), "Wa11et", "s0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Empty(t, sigs)
}

func TestFetchHistory_ListingFailureFetchesNothing(t *testing.T) {
	node := pagedHistory(t, "s4")
	c := newTestClient(t, node, Config{PageSize: 2, BatchSize: 2, Concurrency: 2})

	txs, err := c.FetchHistory(context.Background(), "Wa11et", "s0")
	require.Error(t, err)
	assert.Empty(t, txs)
	assert.Equal(t, 0, node.count("getTransaction"))
}

func TestFetchHistory_SignatureCapKeepsRunAfterCursor(t *testing.T) {
	node := pagedHistory(t, "")
	c := newTestClient(t, node, Config{PageSize: 2, MaxSignatures: 2, BatchSize: 2, Concurrency: 2})

	txs, err := c.FetchHistory(context.Background(), "Wa11et", "s0")
	require.ErrorIs(t, err, domain.ErrHistoryTruncated)
	require.Len(t, txs, 2)
	assert.Equal(t, "s1", txs[0].Signature)
	assert.Equal(t, "s2", txs[1].Signature)
	assert.Equal(t, 2, node.count("getTransaction"))
	assert.Equal(t, 3, node.count("getSignaturesForAddress"))
}

func TestFetchHistory_UnderCapIsComplete(t *testing.T) {
	node := pagedHistory(t, "")
	c := newTestClient(t, node, Config{PageSize: 2, MaxSignatures: 5, BatchSize: 2, Concurrency: 2})

	txs, err := c.FetchHistory(context.Background(), "Wa11et", "s0")
	require.NoError(t, err)
	require.Len(t, txs, 5)
	assert.Equal(t, "s1", txs[0].Signature)
	assert.Equal(t, "s5", txs[4].Signature)
}

func TestFetchTransactions_PreservesOrder(t *testing.T) {
	node := &fakeNode{}
	node.handle = func(w http.ResponseWriter, call rpcCall) any {
		sig := paramString(t, call.Params[0])
		if sig == "gone" {
			return json.RawMessage("null")
		}
		return txResult(sig)
	}
	c := newTestClient(t, node, Config{BatchSize: 2, Concurrency: 2})

	txs, err := c.FetchTransactions(context.Background(), []string{"a", "b", "gone", "c", "d"})
	require.NoError(t, err)
	require.Len(t, txs, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, want, txs[i].Signature)
		assert.Equal(t, []string{"Program log: " + want}, txs[i].LogLines)
	}
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), txs[0].BlockTime)
}

func TestFetchTransactions_RetriesOnceOnRateLimit(t *testing.T) {
	var throttled atomic.Bool
	node := &fakeNode{}
	node.handle = func(w http.ResponseWriter, call rpcCall) any {
		if throttled.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusTooManyRequests)
			return nil
		}
		return txResult(paramString(t, call.Params[0]))
	}
	c := newTestClient(t, node, Config{BatchSize: 5, Concurrency: 1, RetryBackoff: time.Millisecond})

	txs, err := c.FetchTransactions(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 2, node.count("getTransaction"))
}

func TestFetchTransactions_ReturnsPrefixOnFailure(t *testing.T) {
	node := &fakeNode{}
	node.handle = func(w http.ResponseWriter, call rpcCall) any {
		sig := paramString(t, call.Params[0])
		if strings.HasPrefix(sig, "limited") {
			w.WriteHeader(http.StatusTooManyRequests)
			return nil
		}
		return txResult(sig)
	}
	c := newTestClient(t, node, Config{BatchSize: 2, Concurrency: 2, RetryBackoff: time.Millisecond})

	txs, err := c.FetchTransactions(context.Background(), []string{"a", "b", "c", "limited-1", "e", "f"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	require.Len(t, txs, 2)
	assert.Equal(t, "a", txs[0].Signature)
	assert.Equal(t, "b", txs[1].Signature)
	// Nothing after the failing batch is requested.
	assert.LessOrEqual(t, node.count("getTransaction"), 5)
}

func TestFetchHistory_OldestFirst(t *testing.T) {
	node := &fakeNode{}
	node.handle = func(w http.ResponseWriter, call rpcCall) any {
		switch call.Method {
		case "getSignaturesForAddress":
			return []map[string]any{{"signature": "new"}, {"signature": "mid"}, {"signature": "old"}}
		default:
			return txResult(paramString(t, call.Params[0]))
		}
	}
	c := newTestClient(t, node, Config{PageSize: 10, BatchSize: 2, Concurrency: 2})

	txs, err := c.FetchHistory(context.Background(), "Wa11et", "")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "old", txs[0].Signature)
	assert.Equal(t, "new", txs[2].Signature)
}

func TestResolveClientID(t *testing.T) {
	data := binary.LittleEndian.AppendUint64(nil, 4242)
	node := &fakeNode{}
	node.handle = func(w http.ResponseWriter, call rpcCall) any {
		assert.Equal(t, "getProgramAccounts", call.Method)
		assert.Equal(t, "Prog111", paramString(t, call.Params[0]))
		assert.Contains(t, string(call.Params[1]), `"bytes":"Wa11et"`)
		return []map[string]any{{
			"pubkey":  "Acct111",
			"account": map[string]any{"data": []string{base64.StdEncoding.EncodeToString(data), "base64"}},
		}}
	}
	c := newTestClient(t, node, Config{ProgramID: "Prog111"})

	id, err := c.ResolveClientID(context.Background(), "Wa11et")
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), id)
}

func TestResolveClientID_NotFound(t *testing.T) {
	node := &fakeNode{handle: func(w http.ResponseWriter, call rpcCall) any {
		return []any{}
	}}
	c := newTestClient(t, node, Config{ProgramID: "Prog111"})

	_, err := c.ResolveClientID(context.Background(), "Wa11et")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestCall_RPCErrorObject(t *testing.T) {
	node := &fakeNode{handle: func(w http.ResponseWriter, call rpcCall) any {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`)
		return nil
	}}
	c := newTestClient(t, node, Config{})

	_, err := c.FetchSignatures(context.Background(), "bad", "")
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
}
