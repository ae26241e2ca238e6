package keyring

import (
	"errors"
	"os"

	gokeyring "github.com/zalando/go-keyring"
)

const (
	// ServiceName is the keyring service name rob stores secrets under.
	ServiceName = "com.rob.cli"

	// KeyPassword is the keyring key for the brokerage password.
	KeyPassword = "password"

	// KeyTOTPSecret is the keyring key for the authenticator app seed.
	KeyTOTPSecret = "totp_secret"

	// EnvPassword overrides keyring lookups of KeyPassword.
	EnvPassword = "ROBINHOOD_PASSWORD"

	// EnvTOTPSecret overrides keyring lookups of KeyTOTPSecret.
	EnvTOTPSecret = "ROBINHOOD_TOTP_SECRET"
)

// envOverrides maps keyring keys to the environment variables that shadow them.
var envOverrides = map[string]string{
	KeyPassword:   EnvPassword,
	KeyTOTPSecret: EnvTOTPSecret,
}

// ErrNotFound is returned when a secret is not found in the keyring.
var ErrNotFound = errors.New("secret not found")

// Store provides an interface for secure secret storage.
type Store interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// SystemStore implements Store using the OS keychain.
type SystemStore struct{}

func NewSystemStore() *SystemStore {
	return &SystemStore{}
}

func (s *SystemStore) Get(service, key string) (string, error) {
	secret, err := gokeyring.Get(service, key)
	if err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return secret, nil
}

func (s *SystemStore) Set(service, key, value string) error {
	return gokeyring.Set(service, key, value)
}

// Delete removes a secret. A missing secret is not an error.
func (s *SystemStore) Delete(service, key string) error {
	err := gokeyring.Delete(service, key)
	if err != nil && errors.Is(err, gokeyring.ErrNotFound) {
		return nil
	}
	return err
}

// EnvStore wraps another Store and lets environment variables shadow the
// password and TOTP seed, so headless runs never touch the keychain.
type EnvStore struct {
	underlying Store
	getenv     func(string) string
}

func NewEnvStore(underlying Store) *EnvStore {
	return &EnvStore{underlying: underlying, getenv: os.Getenv}
}

// Get returns the environment override for key when set, otherwise the
// underlying store's value.
func (e *EnvStore) Get(service, key string) (string, error) {
	if name, ok := envOverrides[key]; ok {
		if v := e.getenv(name); v != "" {
			return v, nil
		}
	}
	return e.underlying.Get(service, key)
}

func (e *EnvStore) Set(service, key, value string) error {
	return e.underlying.Set(service, key, value)
}

func (e *EnvStore) Delete(service, key string) error {
	return e.underlying.Delete(service, key)
}

// Lookup reads key and maps ErrNotFound to an empty value.
func Lookup(store Store, key string) (string, error) {
	v, err := store.Get(ServiceName, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
