package upstream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(timeout time.Duration) (*Client, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return New("test", timeout, m, slog.New(slog.NewTextHandler(io.Discard, nil))), m
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "v", r.URL.Query().Get("k"))
		assert.Equal(t, "margdarshak-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"n": 7})
	}))
	defer srv.Close()

	c, m := testClient(time.Second)
	c.SetHeader("User-Agent", "margdarshak-test")

	var out struct{ N int }
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, url.Values{"k": {"v"}}, &out))
	assert.Equal(t, 7, out.N)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("test", "success")), 1e-9)
}

func TestGetJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c, m := testClient(time.Second)
	err := c.GetJSON(context.Background(), srv.URL, nil, &struct{}{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Not Authorized")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("test", "error")), 1e-9)
}

func TestGetJSON_AppendsToExistingQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("a"))
		assert.Equal(t, "2", r.URL.Query().Get("b"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := testClient(time.Second)
	require.NoError(t, c.GetJSON(context.Background(), srv.URL+"?a=1", url.Values{"b": {"2"}}, nil))
}

func TestGetJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := testClient(50 * time.Millisecond)
	require.Error(t, c.GetJSON(context.Background(), srv.URL, nil, &struct{}{}))
}

func TestGetJSON_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c, _ := testClient(time.Second)
	err := c.GetJSON(context.Background(), srv.URL, nil, &struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "[out:json];", r.PostForm.Get("data"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, _ := testClient(time.Second)
	var out struct{ OK bool }
	require.NoError(t, c.PostForm(context.Background(), srv.URL, url.Values{"data": {"[out:json];"}}, &out))
	assert.True(t, out.OK)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "x", in["q"])
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, _ := testClient(time.Second)
	var out struct{ OK bool }
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"q": "x"}, &out))
	assert.True(t, out.OK)
}
