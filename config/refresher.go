package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/client-auth/transport/transport"
)

// Refresher is the configuration for a transport.Refresher.
type Refresher struct {
	Config RefresherFactory
}

func (c *Refresher) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig rawConfig

	err := value.Decode(&rawConfig)
	if err != nil {
		return err
	}

	var config RefresherFactory

	switch rawConfig.Type {
	case "http":
		var factory httpRefresher

		err := decode(rawConfig.Config, &factory)
		if err != nil {
			return err
		}

		config = factory

	default:
		return fmt.Errorf("unknown refresher type: %s", rawConfig.Type)
	}

	c.Config = config

	return nil
}

// RefresherFactory creates a new transport.Refresher.
type RefresherFactory interface {
	CreateRefresher(baseURL string) (transport.Refresher, error)
	Validate() error
}

type httpRefresher struct {
	Path string `mapstructure:"path"`
}

func (c httpRefresher) CreateRefresher(baseURL string) (transport.Refresher, error) {
	return transport.NewHTTPRefresher(baseURL, c.Path)
}

func (c httpRefresher) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("refresher: http: path is required")
	}

	return nil
}
