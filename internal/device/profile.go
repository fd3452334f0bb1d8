// Package device persists the handful of values a client keeps between runs.
package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Profile is restored once at startup and written on every change.
type Profile struct {
	DeviceID     string            `yaml:"deviceId"`
	PlayerName   string            `yaml:"playerName"`
	APIKey       string            `yaml:"apiKey"`
	Language     string            `yaml:"language"`
	LastRoomCode string            `yaml:"lastRoomCode"`
	Hints        bool              `yaml:"hints"`
	Sound        bool              `yaml:"sound"`
	Haptics      bool              `yaml:"haptics"`
	RoomTokens   map[string]string `yaml:"roomTokens,omitempty"`
}

// Default is the profile of a first run.
func Default() Profile {
	return Profile{
		DeviceID: uuid.NewString(),
		Language: "en",
		Sound:    true,
		Haptics:  true,
	}
}

// HasAPIKey reports whether a provider credential is stored.
func (p Profile) HasAPIKey() bool { return p.APIKey != "" }

// Store reads and writes a profile file.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load restores the profile, or creates and persists the default one.
// A profile missing its device id gets a new one so the id never changes afterwards.
func (s *Store) Load() (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		p := Default()
		return p, s.write(p)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	p := Default()
	p.DeviceID = ""
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", s.path, err)
	}
	if p.DeviceID == "" {
		p.DeviceID = uuid.NewString()
		return p, s.write(p)
	}
	return p, nil
}

// Save replaces the profile file atomically.
func (s *Store) Save(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(p)
}

// Update loads, mutates and saves the profile.
func (s *Store) Update(mutate func(p *Profile)) (Profile, error) {
	p, err := s.Load()
	if err != nil {
		return Profile{}, err
	}
	mutate(&p)
	if err := s.Save(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *Store) write(p Profile) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".profile-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp profile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp profile: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}
