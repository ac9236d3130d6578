package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcHandler func(method string, params []json.RawMessage) (interface{}, *RPCError)

func newRPCServer(t *testing.T, handle rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handle(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetSignaturesForAddress(t *testing.T) {
	var gotParams []json.RawMessage
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		assert.Equal(t, "getSignaturesForAddress", method)
		gotParams = params
		return []map[string]interface{}{
			{"signature": "s1", "slot": 30, "blockTime": 1700000030, "err": nil},
			{"signature": "s2", "slot": 20, "blockTime": nil, "err": nil},
		}, nil
	})

	c := NewHTTPClient(srv.URL)
	sigs, err := c.GetSignaturesForAddress(context.Background(), testProgramID, &SignaturesOpts{Limit: 20, Before: "s0"})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "s1", sigs[0].Signature)
	assert.Equal(t, uint64(30), sigs[0].Slot)
	require.NotNil(t, sigs[0].BlockTime)
	assert.Nil(t, sigs[1].BlockTime)

	require.Len(t, gotParams, 2)
	var opts map[string]interface{}
	require.NoError(t, json.Unmarshal(gotParams[1], &opts))
	assert.Equal(t, float64(20), opts["limit"])
	assert.Equal(t, "s0", opts["before"])
}

func TestGetTransaction(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		var sig string
		require.NoError(t, json.Unmarshal(params[0], &sig))
		if sig == "missing" {
			return nil, nil
		}
		return map[string]interface{}{
			"slot":      42,
			"blockTime": 1700000000,
			"meta": map[string]interface{}{
				"err":         nil,
				"logMessages": []string{"Program log: Instruction: Mint"},
			},
			"transaction": map[string]interface{}{
				"message": map[string]interface{}{
					"accountKeys": []string{"payer", "mint"},
				},
			},
		}, nil
	})

	c := NewHTTPClient(srv.URL)
	tx, err := c.GetTransaction(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, uint64(42), tx.Slot)
	assert.Equal(t, "s1", tx.Signature)
	assert.Equal(t, []string{"Program log: Instruction: Mint"}, tx.LogMessages)
	assert.Equal(t, []string{"payer", "mint"}, tx.AccountKeys)

	tx, err = c.GetTransaction(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestGetAccountInfo(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		var key string
		require.NoError(t, json.Unmarshal(params[0], &key))
		if key == "missing" {
			return map[string]interface{}{"value": nil}, nil
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports": 100,
				"owner":    testProgramID,
				"data":     []string{"AQID", "base64"},
			},
		}, nil
	})

	c := NewHTTPClient(srv.URL)
	info, err := c.GetAccountInfo(context.Background(), "acct")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "AQID", info.Data)
	assert.Equal(t, uint64(100), info.Lamports)

	info, err = c.GetAccountInfo(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, info)

	_, err = FetchAccountData(context.Background(), c, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCallRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":777}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond))
	slot, err := c.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(777), slot)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(2))
	_, err := c.GetSlot(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
}

func TestRPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		calls.Add(1)
		return nil, &RPCError{Code: -32602, Message: "Invalid param"}
	})

	c := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond))
	_, err := c.GetSlot(context.Background())

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHealthCheck(t *testing.T) {
	srv := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		return 1234, nil
	})

	c := NewHTTPClient(srv.URL)
	require.NoError(t, c.HealthCheck(context.Background()))

	stats := c.Stats()
	assert.True(t, stats.IsHealthy)
	assert.Equal(t, uint64(1234), stats.LatestSlot)
	assert.Equal(t, srv.URL, stats.Endpoint)
}
