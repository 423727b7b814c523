package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials reads and writes the API key kept in a .env file
type Credentials struct {
	Path string
	Key  string
}

// NewCredentials returns a store for the given .env path and key name
func NewCredentials(path, key string) *Credentials {
	if path == "" {
		path = DefaultEnvFile
	}
	if key == "" {
		key = DefaultKeyName
	}
	return &Credentials{Path: path, Key: key}
}

// Ensure creates the file with an empty key when it does not exist
func (c *Credentials) Ensure() error {
	if _, err := os.Stat(c.Path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return &Error{Field: c.Path, Err: err}
	}

	if err := godotenv.Write(map[string]string{c.Key: ""}, c.Path); err != nil {
		return &Error{Field: c.Path, Err: fmt.Errorf("failed to create env file: %w", err)}
	}
	return nil
}

// Resolve returns the API key. The environment wins over the file. A missing
// or empty key yields an *Error wrapping ErrMissingCredential.
func (c *Credentials) Resolve() (string, error) {
	if v := strings.TrimSpace(os.Getenv(c.Key)); v != "" {
		return v, nil
	}

	if err := c.Ensure(); err != nil {
		return "", err
	}

	values, err := godotenv.Read(c.Path)
	if err != nil {
		return "", &Error{Field: c.Path, Err: fmt.Errorf("failed to read env file: %w", err)}
	}

	key := strings.TrimSpace(values[c.Key])
	if key == "" {
		return "", &Error{Field: c.Key, Err: ErrMissingCredential}
	}
	return key, nil
}

// Save persists the key, keeping any other entries already in the file
func (c *Credentials) Save(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &Error{Field: c.Key, Err: ErrMissingCredential}
	}

	values := map[string]string{}
	if _, err := os.Stat(c.Path); err == nil {
		existing, err := godotenv.Read(c.Path)
		if err != nil {
			return &Error{Field: c.Path, Err: fmt.Errorf("failed to read env file: %w", err)}
		}
		values = existing
	}
	values[c.Key] = key

	if err := godotenv.Write(values, c.Path); err != nil {
		return &Error{Field: c.Path, Err: fmt.Errorf("failed to write env file: %w", err)}
	}
	return nil
}
