package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	optionlib "github.com/sagikazarmark/go-option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/client-auth/transport/transport"
)

func TestHTTPDispatcher_Dispatch(t *testing.T) {
	t.Run("AttachesCredential", func(t *testing.T) {
		var authorization string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization = r.Header.Get("Authorization")
		}))
		defer server.Close()

		credentials := &transport.InMemoryCredentialStore{}
		credentials.Set(optionlib.Some("token"))

		dispatcher, err := transport.NewHTTPDispatcher(server.URL, credentials)
		require.NoError(t, err)

		_, err = dispatcher.Dispatch(context.Background(), transport.Request{
			Method: http.MethodGet,
			Path:   "/resource",
		})
		require.NoError(t, err)

		assert.Equal(t, "Bearer token", authorization)
	})

	t.Run("Uncredentialed", func(t *testing.T) {
		var authorization string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization = r.Header.Get("Authorization")
		}))
		defer server.Close()

		dispatcher, err := transport.NewHTTPDispatcher(server.URL, &transport.InMemoryCredentialStore{})
		require.NoError(t, err)

		_, err = dispatcher.Dispatch(context.Background(), transport.Request{
			Method: http.MethodGet,
			Path:   "/resource",
		})
		require.NoError(t, err)

		assert.Empty(t, authorization)
	})

	t.Run("PassesRequestThrough", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/widgets", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"name":"widget"}`), body)

			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":1}`))
		}))
		defer server.Close()

		dispatcher, err := transport.NewHTTPDispatcher(server.URL, &transport.InMemoryCredentialStore{})
		require.NoError(t, err)

		header := http.Header{}
		header.Set("Content-Type", "application/json")

		response, err := dispatcher.Dispatch(context.Background(), transport.Request{
			Method: http.MethodPost,
			Path:   "/widgets",
			Header: header,
			Body:   []byte(`{"name":"widget"}`),
		})
		require.NoError(t, err)

		assert.Equal(t, http.StatusCreated, response.StatusCode)
		assert.Equal(t, []byte(`{"id":1}`), response.Body)
	})

	t.Run("DeliversFailureStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}))
		defer server.Close()

		dispatcher, err := transport.NewHTTPDispatcher(server.URL, &transport.InMemoryCredentialStore{})
		require.NoError(t, err)

		response, err := dispatcher.Dispatch(context.Background(), transport.Request{
			Method: http.MethodGet,
			Path:   "/resource",
		})
		require.NoError(t, err)

		assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	})

	t.Run("TransportError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		dispatcher, err := transport.NewHTTPDispatcher(server.URL, &transport.InMemoryCredentialStore{})
		require.NoError(t, err)

		_, err = dispatcher.Dispatch(context.Background(), transport.Request{
			Method: http.MethodGet,
			Path:   "/resource",
		})
		require.Error(t, err)
	})
}
