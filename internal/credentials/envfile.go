package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/jonandersen/rob/internal/config"
	"github.com/jonandersen/rob/internal/keyring"
)

// EnvFiles returns the .env locations searched for credentials, in order:
// the working directory, the config directory, then ~/.rob.
func EnvFiles() []string {
	files := []string{".env", config.EnvFilePath()}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".rob", ".env"))
	}
	return files
}

// LoadEnv loads the first file in paths into the process environment, then
// keeps loading later files only while the username or password is still
// unset. Variables already present in the environment are never overridden.
// It returns the files that were loaded.
func LoadEnv(paths ...string) ([]string, error) {
	var loaded []string
	for _, path := range paths {
		if len(loaded) > 0 && haveLogin() {
			break
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("failed to access %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

func haveLogin() bool {
	return os.Getenv(EnvUsername) != "" && os.Getenv(keyring.EnvPassword) != ""
}

// ReadEnvFile returns the variables in path, or an empty map when it does
// not exist.
func ReadEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

// WriteEnvFile merges c into the .env file at path and restricts it to the
// owner (0600). Empty fields leave existing values untouched.
func WriteEnvFile(path string, c Credentials) error {
	values, err := ReadEnvFile(path)
	if err != nil {
		return err
	}
	set := func(key, value string) {
		if value != "" {
			values[key] = value
		}
	}
	set(EnvUsername, c.Username)
	set(keyring.EnvPassword, c.Password.Reveal())
	set(keyring.EnvTOTPSecret, c.TOTPSeed.Reveal())

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}
