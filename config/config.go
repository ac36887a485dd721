package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/client-auth/transport/transport"
)

// Config collects all configuration options.
type Config struct {
	API             API             `yaml:"api"`
	CredentialStore CredentialStore `yaml:"credentialStore"`
	Refresher       Refresher       `yaml:"refresher"`
	Refresh         Refresh         `yaml:"refresh"`
}

// API configures the endpoints the transport talks to.
type API struct {
	BaseURL string `yaml:"baseUrl"`
}

// Validate validates the configuration.
func (c API) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("api: base url is required")
	}

	return nil
}

// Refresh configures the refresh coordination policy.
type Refresh struct {
	Timeout time.Duration
}

func (c *Refresh) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Timeout string `yaml:"timeout"`
	}

	err := value.Decode(&rawConfig)
	if err != nil {
		return err
	}

	if rawConfig.Timeout == "" {
		return nil
	}

	timeout, err := time.ParseDuration(rawConfig.Timeout)
	if err != nil {
		return fmt.Errorf("refresh: parsing timeout: %w", err)
	}

	c.Timeout = timeout

	return nil
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}

	if c.CredentialStore.Config == nil {
		return fmt.Errorf("credential store is required")
	}

	if err := c.CredentialStore.Config.Validate(); err != nil {
		return err
	}

	if c.Refresher.Config == nil {
		return fmt.Errorf("refresher is required")
	}

	if err := c.Refresher.Config.Validate(); err != nil {
		return err
	}

	return nil
}

// CreateClient assembles a transport.Client from the configuration.
func (c Config) CreateClient(watcher *transport.SessionWatcher, opts ...transport.ClientOption) (*transport.Client, error) {
	credentials, err := c.CredentialStore.Config.CreateCredentialStore()
	if err != nil {
		return nil, err
	}

	dispatcher, err := transport.NewHTTPDispatcher(c.API.BaseURL, credentials)
	if err != nil {
		return nil, err
	}

	refresher, err := c.Refresher.Config.CreateRefresher(c.API.BaseURL)
	if err != nil {
		return nil, err
	}

	if c.Refresh.Timeout > 0 {
		opts = append([]transport.ClientOption{transport.WithRefreshTimeout(c.Refresh.Timeout)}, opts...)
	}

	return transport.NewClient(dispatcher, refresher, credentials, watcher, opts...), nil
}

// rawConfig is a general struct to be used by other config structs to unmarshal yaml config first.
type rawConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}
