// Package credentials stores API keys outside the config file and resolves
// them with environment variables taking priority.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// File is the on-disk shape of credentials.json.
type File struct {
	Providers map[string]ProviderCredential `json:"providers"`
}

type ProviderCredential struct {
	APIKey string `json:"api_key"`
}

// envVars lists the environment variables checked per credential name, in
// order. Polly and Cloud TTS use their SDK credential chains instead.
var envVars = map[string][]string{
	"google":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"google_tts": {"GOOGLE_TTS_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// EnvVars returns the environment variables consulted for provider.
func EnvVars(provider string) []string {
	return envVars[provider]
}

// Names returns every credential name that can be stored.
func Names() []string {
	names := make([]string, 0, len(envVars))
	for name := range envVars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store reads and writes credentials.json.
type Store struct {
	path      string
	lookupEnv func(string) (string, bool)
}

// Option configures a Store.
type Option func(*Store)

// WithLookupEnv replaces the environment lookup.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(s *Store) { s.lookupEnv = fn }
}

// DefaultPath returns ~/.config/ccvoice/credentials.json.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ccvoice", "credentials.json")
}

// NewStore creates a store at path. An empty path uses DefaultPath.
func NewStore(path string, opts ...Option) *Store {
	if path == "" {
		path = DefaultPath()
	}
	s := &Store{path: path, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Resolve returns the key for provider from the environment, then the file.
func (s *Store) Resolve(provider string) (string, bool) {
	if key, ok := s.fromEnv(provider); ok {
		return key, true
	}
	key, ok, err := s.Get(provider)
	if err != nil || !ok {
		return "", false
	}
	return key, true
}

func (s *Store) fromEnv(provider string) (string, bool) {
	for _, name := range envVars[provider] {
		if v, ok := s.lookupEnv(name); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

// Source describes where Resolve would find the key: "env", "file" or "".
func (s *Store) Source(provider string) string {
	if _, ok := s.fromEnv(provider); ok {
		return "env"
	}
	if _, ok, err := s.Get(provider); err == nil && ok {
		return "file"
	}
	return ""
}

// Get returns the stored key for provider.
func (s *Store) Get(provider string) (string, bool, error) {
	f, err := s.load()
	if err != nil {
		return "", false, err
	}
	cred, ok := f.Providers[provider]
	if !ok || cred.APIKey == "" {
		return "", false, nil
	}
	return cred.APIKey, true, nil
}

// Set stores key for provider.
func (s *Store) Set(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	f, err := s.load()
	if err != nil {
		return err
	}
	f.Providers[provider] = ProviderCredential{APIKey: key}
	return s.save(f)
}

// Remove deletes provider's key. Removing an absent key is not an error.
func (s *Store) Remove(provider string) error {
	f, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := f.Providers[provider]; !ok {
		return nil
	}
	delete(f.Providers, provider)
	return s.save(f)
}

// List returns the stored provider names, sorted.
func (s *Store) List() ([]string, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Providers))
	for name := range f.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) load() (*File, error) {
	f := &File{Providers: map[string]ProviderCredential{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", s.path, err)
	}
	if f.Providers == nil {
		f.Providers = map[string]ProviderCredential{}
	}
	return f, nil
}

func (s *Store) save(f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Mask shows the first and last four characters of long keys.
func Mask(key string) string {
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "****"
}
