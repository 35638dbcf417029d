// internal/config/secrets.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Secrets is the deployment secrets block:
//
//	GEMINI_API_KEY = "..."
//	GOOGLE_API_KEY = "..."
//
//	[gemini]
//	model = "gemini-2.5-flash"
//	narrative_model = "gemini-2.5-pro"
type Secrets struct {
	GeminiAPIKey string `toml:"GEMINI_API_KEY"`
	GoogleAPIKey string `toml:"GOOGLE_API_KEY"`
	Gemini       struct {
		Model          string `toml:"model"`
		NarrativeModel string `toml:"narrative_model"`
	} `toml:"gemini"`
}

// LoadSecrets decodes path. A missing file yields empty secrets.
func LoadSecrets(path string) (*Secrets, error) {
	s := &Secrets{}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets: %w", err)
	}
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse secrets %s: %w", path, err)
	}
	return s, nil
}

// Apply fills blank keys of cfg. Environment values are never overridden.
func (s *Secrets) Apply(cfg *Config) {
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = s.GeminiAPIKey
	}
	if cfg.GoogleAPIKey == "" {
		cfg.GoogleAPIKey = s.GoogleAPIKey
	}
	if s.Gemini.Model != "" {
		cfg.VisionModel = s.Gemini.Model
	}
	if s.Gemini.NarrativeModel != "" {
		cfg.NarrativeModel = s.Gemini.NarrativeModel
	}
}
