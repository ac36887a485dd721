package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	optionlib "github.com/sagikazarmark/go-option"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/client-auth/transport/stubapi"
	"github.com/client-auth/transport/transport"
)

// The demo walks the transport through its whole protocol against the stub
// API: login, credential expiry, a concurrent burst recovered by a single
// refresh, and a forced logout once the session is revoked server side.
func main() {
	var (
		addr       string
		debug      bool
		expiration time.Duration
	)

	flag.StringVar(&addr, "addr", "localhost:8080", "Address the stub API listens on")
	flag.BoolVar(&debug, "debug", false, "Debug mode")
	flag.DurationVar(&expiration, "expiration", 2*time.Second, "Access token lifetime")

	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	if debug {
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte("password"), 10)
	if err != nil {
		logger.Sugar().Fatalf("error generating password: %v", err)
	}

	server, err := stubapi.NewServer(
		map[string]string{
			"user": string(passwordHash),
		},
		stubapi.WithTokenExpiration(expiration),
		stubapi.WithLogger(logger),
	)
	if err != nil {
		logger.Sugar().Fatalf("error creating stub API: %v", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Sugar().Fatalf("error listening on %s: %v", addr, err)
	}

	go http.Serve(listener, server.Handler())

	baseURL := "http://" + listener.Addr().String()

	logger.Sugar().Infof("stub API listening on %s", baseURL)

	credentials := &transport.InMemoryCredentialStore{}

	refresher, err := transport.NewHTTPRefresher(baseURL, "/session/refresh", transport.WithLogger(logger))
	if err != nil {
		logger.Sugar().Fatalf("error creating refresher: %v", err)
	}

	dispatcher, err := transport.NewHTTPDispatcher(baseURL, credentials, transport.WithLogger(logger))
	if err != nil {
		logger.Sugar().Fatalf("error creating dispatcher: %v", err)
	}

	watcher := &transport.SessionWatcher{}

	unsubscribe := watcher.Subscribe(func() {
		logger.Info("session invalidated: time to show the login screen")
	})
	defer unsubscribe()

	client := transport.NewClient(dispatcher, refresher, credentials, watcher, transport.WithLogger(logger))

	// Log in through the refresher's HTTP client
	// so its cookie jar picks up the session cookie.
	token, err := login(refresher.Client(), baseURL, "user", "password")
	if err != nil {
		logger.Sugar().Fatalf("error logging in: %v", err)
	}

	credentials.Set(optionlib.Some(token))

	ctx := context.Background()
	profile := transport.Request{Method: http.MethodGet, Path: "/api/profile"}

	response, err := client.Do(ctx, profile)
	if err != nil {
		logger.Sugar().Fatalf("first request failed: %v", err)
	}

	logger.Sugar().Infof("first request: %d %s", response.StatusCode, response.Body)

	// Let the access token expire, then fire concurrent requests:
	// a single refresh recovers all of them.
	time.Sleep(expiration + time.Second)

	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			response, err := client.Do(ctx, profile)
			if err != nil {
				logger.Sugar().Errorf("request %d failed: %v", i, err)

				return
			}

			logger.Sugar().Infof("request %d: %d %s", i, response.StatusCode, response.Body)
		}(i)
	}

	wg.Wait()

	logger.Sugar().Infof("refresh calls so far: %d", server.RefreshCalls())

	// Revoke the session server side:
	// the next refresh fails and forces a logout.
	server.RevokeSessions()
	time.Sleep(expiration + time.Second)

	_, err = client.Do(ctx, profile)
	if err != nil {
		logger.Sugar().Infof("request after revocation: %v", err)
	}
}

func login(client *http.Client, baseURL string, username string, password string) (string, error) {
	response, err := client.PostForm(baseURL+"/session/login", url.Values{
		"username": {username},
		"password": {password},
	})
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", response.StatusCode)
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}

	err = json.NewDecoder(response.Body).Decode(&decoded)
	if err != nil {
		return "", err
	}

	return decoded.AccessToken, nil
}
