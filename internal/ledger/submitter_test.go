package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelaySubmitterNotConfigured(t *testing.T) {
	s := NewRelaySubmitter("", time.Second)
	_, err := s.Submit(context.Background(), Operation{Action: ActionMint})
	assert.ErrorIs(t, err, ErrSubmitterNotConfigured)
}

func TestRelaySubmitterSubmit(t *testing.T) {
	var got Operation
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"signature": "sig123"})
	}))
	defer srv.Close()

	s := NewRelaySubmitter(srv.URL, time.Second)
	sig, err := s.Submit(context.Background(), Operation{
		Action:    ActionMint,
		Mint:      testMint,
		Recipient: testAccount,
		Amount:    "1000",
	})
	require.NoError(t, err)
	assert.Equal(t, "sig123", sig)
	assert.Equal(t, ActionMint, got.Action)
	assert.Equal(t, testAccount, got.Recipient)
	assert.Equal(t, "1000", got.Amount)
}

func TestRelaySubmitterErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "custom program error: 0x1771"})
	}))
	defer srv.Close()

	_, err := NewRelaySubmitter(srv.URL, time.Second).Submit(context.Background(), Operation{Action: ActionBurn})
	require.Error(t, err)
	assert.Equal(t, "custom program error: 0x1771", err.Error())

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer empty.Close()

	_, err = NewRelaySubmitter(empty.URL, time.Second).Submit(context.Background(), Operation{Action: ActionBurn})
	assert.Error(t, err)
}
