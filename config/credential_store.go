package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/client-auth/transport/transport"
)

// CredentialStore is the configuration for a transport.CredentialStore.
type CredentialStore struct {
	Config CredentialStoreFactory
}

func (c *CredentialStore) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig rawConfig

	err := value.Decode(&rawConfig)
	if err != nil {
		return err
	}

	var config CredentialStoreFactory

	switch rawConfig.Type {
	case "memory":
		var factory memoryCredentialStore

		err := decode(rawConfig.Config, &factory)
		if err != nil {
			return err
		}

		config = factory

	default:
		return fmt.Errorf("unknown credential store type: %s", rawConfig.Type)
	}

	c.Config = config

	return nil
}

// CredentialStoreFactory creates a new transport.CredentialStore.
type CredentialStoreFactory interface {
	CreateCredentialStore() (transport.CredentialStore, error)
	Validate() error
}

type memoryCredentialStore struct{}

func (c memoryCredentialStore) CreateCredentialStore() (transport.CredentialStore, error) {
	return &transport.InMemoryCredentialStore{}, nil
}

func (c memoryCredentialStore) Validate() error {
	return nil
}
