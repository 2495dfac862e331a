package gzip

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func echo(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func compress(t *testing.T, data string) *bytes.Buffer {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	const body = `{"customer":"234774784","amount":5000}`
	h := GzipMiddleware(echo)

	t.Run("plain", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		h(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, w.Header().Get("Content-Encoding"))
		require.Equal(t, body, w.Body.String())
	})

	t.Run("compressed request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", compress(t, body))
		r.Header.Set("Content-Encoding", "gzip")
		w := httptest.NewRecorder()
		h(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, body, w.Body.String())
	})

	t.Run("compressed response", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
		r.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		h(w, r)

		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		got, err := io.ReadAll(zr)
		require.NoError(t, err)
		require.Equal(t, body, string(got))
	})

	t.Run("broken request", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
		r.Header.Set("Content-Encoding", "gzip")
		w := httptest.NewRecorder()
		h(w, r)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
