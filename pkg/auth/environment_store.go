package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads a single read-only account from SEARCHTWEETS_*
// variables.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an account from the environment. name only labels it.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	vars := loadEnvCredentials()
	account, err := parseCredentials(vars, vars["account_type"])
	if err != nil {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = "env"
	}
	account.Name = name
	account.LastModified = time.Now()
	return account, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("SEARCHTWEETS_BEARER_TOKEN") != "" || os.Getenv("SEARCHTWEETS_PASSWORD") != ""
}
