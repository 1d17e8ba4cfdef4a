package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetAppliesDefaultHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := New()
	c.SetDefaultHeaders(map[string]string{"Authorization": "secret-key"})

	resp, err := c.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "secret-key", gotAuth)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestClient_PostSendsBodyAndContentType(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = readAll(r)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := New()
	resp, err := c.Post(context.Background(), server.URL, []byte(`{"a":1}`), "application/json")
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, `{"a":1}`, string(gotBody))
}

func TestResponse_IsSuccessBoundary(t *testing.T) {
	assert.True(t, (&Response{Status: 200}).IsSuccess())
	assert.True(t, (&Response{Status: 299}).IsSuccess())
	assert.False(t, (&Response{Status: 300}).IsSuccess())
	assert.False(t, (&Response{Status: 404}).IsSuccess())
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
