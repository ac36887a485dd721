package stubapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/client-auth/transport/stubapi"
)

func newTestServer(t *testing.T, opts ...stubapi.ServerOption) (*stubapi.Server, *httptest.Server) {
	t.Helper()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)

	server, err := stubapi.NewServer(
		map[string]string{
			"alice": string(passwordHash),
		},
		opts...,
	)
	require.NoError(t, err)

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return server, httpServer
}

func newSessionClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{Jar: jar}
}

func login(t *testing.T, client *http.Client, baseURL string, username string, password string) (int, string) {
	t.Helper()

	response, err := client.PostForm(baseURL+"/session/login", url.Values{
		"username": {username},
		"password": {password},
	})
	require.NoError(t, err)
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return response.StatusCode, ""
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}

	require.NoError(t, json.NewDecoder(response.Body).Decode(&decoded))

	return response.StatusCode, decoded.AccessToken
}

func refresh(t *testing.T, client *http.Client, baseURL string) (int, string) {
	t.Helper()

	response, err := client.Post(baseURL+"/session/refresh", "", nil)
	require.NoError(t, err)
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return response.StatusCode, ""
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}

	require.NoError(t, json.NewDecoder(response.Body).Decode(&decoded))

	return response.StatusCode, decoded.AccessToken
}

func getProfile(t *testing.T, client *http.Client, baseURL string, token string) int {
	t.Helper()

	request, err := http.NewRequest(http.MethodGet, baseURL+"/api/profile", nil)
	require.NoError(t, err)

	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	return response.StatusCode
}

func TestServer_Login(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		_, httpServer := newTestServer(t)
		client := newSessionClient(t)

		status, token := login(t, client, httpServer.URL, "alice", "password")

		assert.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, token)

		serverURL, err := url.Parse(httpServer.URL)
		require.NoError(t, err)

		cookies := client.Jar.Cookies(serverURL)
		require.Len(t, cookies, 1)
		assert.Equal(t, stubapi.SessionCookieName, cookies[0].Name)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, httpServer := newTestServer(t)
		client := newSessionClient(t)

		status, _ := login(t, client, httpServer.URL, "alice", "nope")

		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, httpServer := newTestServer(t)
		client := newSessionClient(t)

		status, _ := login(t, client, httpServer.URL, "bob", "password")

		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestServer_Refresh(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		server, httpServer := newTestServer(t)
		client := newSessionClient(t)

		status, _ := login(t, client, httpServer.URL, "alice", "password")
		require.Equal(t, http.StatusOK, status)

		status, token := refresh(t, client, httpServer.URL)

		assert.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, token)
		assert.Equal(t, 1, server.RefreshCalls())
	})

	t.Run("WithoutSession", func(t *testing.T) {
		_, httpServer := newTestServer(t)
		client := newSessionClient(t)

		status, _ := refresh(t, client, httpServer.URL)

		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("RevokedSession", func(t *testing.T) {
		server, httpServer := newTestServer(t)
		client := newSessionClient(t)

		status, _ := login(t, client, httpServer.URL, "alice", "password")
		require.Equal(t, http.StatusOK, status)

		server.RevokeSessions()

		status, _ = refresh(t, client, httpServer.URL)

		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestServer_Profile(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		_, httpServer := newTestServer(t)
		client := newSessionClient(t)

		status, token := login(t, client, httpServer.URL, "alice", "password")
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, http.StatusOK, getProfile(t, client, httpServer.URL, token))
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, httpServer := newTestServer(t)
		client := newSessionClient(t)

		assert.Equal(t, http.StatusUnauthorized, getProfile(t, client, httpServer.URL, ""))
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(time.Now())

		_, httpServer := newTestServer(t, stubapi.WithClock(clock), stubapi.WithTokenExpiration(time.Minute))
		client := newSessionClient(t)

		status, token := login(t, client, httpServer.URL, "alice", "password")
		require.Equal(t, http.StatusOK, status)

		clock.Advance(2 * time.Minute)

		assert.Equal(t, http.StatusUnauthorized, getProfile(t, client, httpServer.URL, token))

		// a refreshed token works again
		status, token = refresh(t, client, httpServer.URL)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, http.StatusOK, getProfile(t, client, httpServer.URL, token))
	})
}
