package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAudit_JSON(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events":[{"event":"mint","payload":{"amount":"5"}}]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := fetchAudit(context.Background(), &auditOptions{baseURL: srv.URL + "/", format: "json", action: "mint"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "/audit", gotPath)
	assert.Equal(t, "action=mint", gotQuery)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded["events"], 1)
}

func TestFetchAudit_CSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audit/export", r.URL.Path)
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Write([]byte("time,event\n"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, fetchAudit(context.Background(), &auditOptions{baseURL: srv.URL, format: "csv"}, &out))
	assert.Equal(t, "time,event\n", out.String())
}

func TestFetchAudit_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	err := fetchAudit(context.Background(), &auditOptions{baseURL: srv.URL, format: "json"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	err = fetchAudit(context.Background(), &auditOptions{baseURL: srv.URL, format: "xml"}, &bytes.Buffer{})
	require.Error(t, err)
}
