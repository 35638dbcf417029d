// internal/drive/auth.go
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/Corphon/MoodboardPitch/internal/utils"
)

// Credentials selects how the Drive API is reached.
type Credentials struct {
	APIKey          string
	CredentialsFile string
	TokenFile       string
	// TokenSecret, when set, encrypts the token file at rest.
	TokenSecret     string
}

// LoadOAuthConfig reads a desktop-app client file downloaded from the Cloud console.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, drivev3.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client file: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a token saved by SaveToken with the same secret.
func LoadToken(path, secret string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if secret != "" {
		if data, err = utils.Decrypt(strings.TrimSpace(string(data)), secret); err != nil {
			return nil, fmt.Errorf("decrypt token file: %w", err)
		}
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return tok, nil
}

// SaveToken writes tok readable by the owner only, encrypted when secret is set.
func SaveToken(path string, tok *oauth2.Token, secret string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if secret != "" {
		sealed, err := utils.Encrypt(data, secret)
		if err != nil {
			return fmt.Errorf("encrypt token: %w", err)
		}
		data = []byte(sealed)
	}
	return os.WriteFile(path, data, 0600)
}

// AuthCodeURL is the consent page for the out-of-band desktop flow.
func AuthCodeURL(cfg *oauth2.Config) string {
	return cfg.AuthCodeURL("moodboard-pitch", oauth2.AccessTypeOffline)
}

// Exchange trades the pasted code for a token and stores it at tokenFile.
func Exchange(ctx context.Context, cfg *oauth2.Config, code, tokenFile, secret string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := SaveToken(tokenFile, tok, secret); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}

// NewService builds a Drive client from an API key, else from a stored OAuth
// token. It returns nil without error when neither is available; the loader
// then falls back to the public folder page.
func NewService(ctx context.Context, creds Credentials, extra ...option.ClientOption) (*drivev3.Service, error) {
	logger := utils.GetLogger()

	if creds.APIKey != "" {
		opts := append([]option.ClientOption{option.WithAPIKey(creds.APIKey)}, extra...)
		return drivev3.NewService(ctx, opts...)
	}

	if creds.CredentialsFile == "" || creds.TokenFile == "" {
		return nil, nil
	}
	cfg, err := LoadOAuthConfig(creds.CredentialsFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(creds.TokenFile, creds.TokenSecret)
	if err != nil {
		logger.Warn("credentials.json présent mais aucun jeton OAuth", map[string]interface{}{
			"token_file": creds.TokenFile,
			"hint":       "lancer l'autorisation Drive depuis la console",
		})
		return nil, nil
	}

	client := cfg.Client(ctx, tok)
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, extra...)
	return drivev3.NewService(ctx, opts...)
}
