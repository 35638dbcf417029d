// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const settingsFileName = "settings.yaml"

var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AnalyzerSettings tunes the Gemini image analysis loop.
type AnalyzerSettings struct {
	BatchSize      int    `yaml:"batch_size" json:"batch_size" validate:"min=1,max=20"`
	MinDelayMs     int    `yaml:"min_delay_ms" json:"min_delay_ms" validate:"min=0,max=60000"`
	MaxRetries     int    `yaml:"max_retries" json:"max_retries" validate:"min=1,max=10"`
	VisionModel    string `yaml:"vision_model" json:"vision_model" validate:"required"`
	FallbackModel  string `yaml:"fallback_model" json:"fallback_model"`
	NarrativeModel string `yaml:"narrative_model" json:"narrative_model" validate:"required"`
	ImageMaxSide   int    `yaml:"image_max_side" json:"image_max_side" validate:"min=64,max=4096"`
	JPEGQuality    int    `yaml:"jpeg_quality" json:"jpeg_quality" validate:"min=1,max=100"`
}

// StorageSettings selects the project repository and analysis cache backends.
type StorageSettings struct {
	ProjectStore  string `yaml:"project_store" json:"project_store" validate:"oneof=file sqlite"`
	SQLitePath    string `yaml:"sqlite_path" json:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPassword string `yaml:"-" json:"-"`
}

// AppConfig is the live process configuration. Env values always win over
// settings.yaml; API keys are kept in memory only.
type AppConfig struct {
	Port         string `yaml:"-" json:"port"`
	DataDir      string `yaml:"-" json:"data_dir"`
	StaticDir    string `yaml:"-" json:"static_dir"`
	TemplatesDir string `yaml:"-" json:"templates_dir"`
	LogDir       string `yaml:"-" json:"log_dir"`
	DebugMode    bool   `yaml:"-" json:"debug_mode"`

	GeminiAPIKey    string `yaml:"-" json:"-"`
	GoogleAPIKey    string `yaml:"-" json:"-"`
	CredentialsFile string `yaml:"-" json:"credentials_file"`
	TokenFile       string `yaml:"-" json:"token_file"`
	TokenSecret     string `yaml:"-" json:"-"`

	LLMProvider string            `yaml:"llm_provider" json:"llm_provider" validate:"required"`
	LLMConfig   map[string]string `yaml:"llm_config" json:"-"`

	Analyzer AnalyzerSettings `yaml:"analyzer" json:"analyzer"`
	Storage  StorageSettings  `yaml:"storage" json:"storage"`
}

// Config holds the values read from the environment.
type Config struct {
	Port            string
	DataDir         string
	StaticDir       string
	TemplatesDir    string
	LogDir          string
	DebugMode       bool
	GeminiAPIKey    string
	GoogleAPIKey    string
	CredentialsFile string
	TokenFile       string
	TokenSecret     string
	SecretsFile     string
	ProjectStore    string
	SQLitePath      string
	RedisAddr       string
	RedisPassword   string

	// set when secrets.toml pins models
	VisionModel    string
	NarrativeModel string
}

// Load reads the environment, an optional .env file and the TOML secrets file.
func Load() (*Config, error) {
	godotenv.Load()

	dataDir := getEnvPath("DATA_DIR", "data")
	cfg := &Config{
		Port:            getEnv("PORT", "8501"),
		DataDir:         dataDir,
		StaticDir:       getEnv("STATIC_DIR", "web/static"),
		TemplatesDir:    getEnv("TEMPLATES_DIR", "web/templates"),
		LogDir:          getEnvPath("LOG_DIR", "logs"),
		DebugMode:       getEnvBool("DEBUG_MODE", true),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GoogleAPIKey:    getEnv("GOOGLE_DRIVE_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		TokenFile:       getEnv("GOOGLE_TOKEN_FILE", "token.json"),
		TokenSecret:     getEnv("GOOGLE_TOKEN_SECRET", ""),
		SecretsFile:     getEnv("SECRETS_FILE", "secrets.toml"),
		ProjectStore:    getEnv("PROJECT_STORE", "file"),
		SQLitePath:      getEnv("SQLITE_PATH", filepath.Join(dataDir, "projects.db")),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
	}

	secrets, err := LoadSecrets(cfg.SecretsFile)
	if err != nil {
		return nil, err
	}
	secrets.Apply(cfg)

	if cfg.GeminiAPIKey == "" {
		log.Println("⚠️ GEMINI_API_KEY non défini: l'analyse et la génération resteront indisponibles")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath returns a directory path from the environment and creates it.
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("warning: cannot create directory %s: %v\n", path, err)
		}
	}

	return path
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return value == "yes"
	}
	return b
}

// DefaultAnalyzerSettings mirrors the pacing that keeps free-tier Gemini keys under quota.
func DefaultAnalyzerSettings() AnalyzerSettings {
	return AnalyzerSettings{
		BatchSize:      10,
		MinDelayMs:     500,
		MaxRetries:     3,
		VisionModel:    "gemini-2.5-flash",
		FallbackModel:  "gemini-2.0-flash",
		NarrativeModel: "gemini-2.5-pro",
		ImageMaxSide:   1024,
		JPEGQuality:    85,
	}
}

func newAppConfig(base *Config) *AppConfig {
	analyzer := DefaultAnalyzerSettings()
	if base.VisionModel != "" {
		analyzer.VisionModel = base.VisionModel
	}
	if base.NarrativeModel != "" {
		analyzer.NarrativeModel = base.NarrativeModel
	}
	return &AppConfig{
		Port:            base.Port,
		DataDir:         base.DataDir,
		StaticDir:       base.StaticDir,
		TemplatesDir:    base.TemplatesDir,
		LogDir:          base.LogDir,
		DebugMode:       base.DebugMode,
		GeminiAPIKey:    base.GeminiAPIKey,
		GoogleAPIKey:    base.GoogleAPIKey,
		CredentialsFile: base.CredentialsFile,
		TokenFile:       base.TokenFile,
		TokenSecret:     base.TokenSecret,
		LLMProvider:     "gemini",
		LLMConfig: map[string]string{
			"api_key":       base.GeminiAPIKey,
			"default_model": analyzer.NarrativeModel,
		},
		Analyzer: analyzer,
		Storage: StorageSettings{
			ProjectStore:  base.ProjectStore,
			SQLitePath:    base.SQLitePath,
			RedisAddr:     base.RedisAddr,
			RedisPassword: base.RedisPassword,
		},
	}
}

// InitConfig builds the process configuration and merges settings.yaml from dataDir.
func InitConfig(dataDir string) error {
	baseConfig, err := Load()
	if err != nil {
		return err
	}
	return initFrom(baseConfig, dataDir)
}

func initFrom(baseConfig *Config, dataDir string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	configFile = filepath.Join(dataDir, settingsFileName)
	cfg := newAppConfig(baseConfig)

	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if err := yaml.Unmarshal(data, &saved); err != nil {
			log.Printf("⚠️ %s illisible, valeurs par défaut utilisées: %v", configFile, err)
		} else {
			mergeSaved(cfg, &saved)
		}
	}

	if err := Validate(cfg); err != nil {
		log.Printf("⚠️ configuration invalide, valeurs par défaut restaurées: %v", err)
		cfg = newAppConfig(baseConfig)
	}

	currentConfig = cfg
	return saveLocked()
}

// mergeSaved copies persisted settings onto cfg. Env-provided storage choices win.
func mergeSaved(cfg, saved *AppConfig) {
	if saved.LLMProvider != "" {
		cfg.LLMProvider = saved.LLMProvider
	}
	for k, v := range saved.LLMConfig {
		if k == "api_key" {
			continue
		}
		cfg.LLMConfig[k] = v
	}
	if saved.Analyzer.VisionModel != "" {
		cfg.Analyzer = saved.Analyzer
	}
	if os.Getenv("PROJECT_STORE") == "" && saved.Storage.ProjectStore != "" {
		cfg.Storage.ProjectStore = saved.Storage.ProjectStore
	}
	if os.Getenv("SQLITE_PATH") == "" && saved.Storage.SQLitePath != "" {
		cfg.Storage.SQLitePath = saved.Storage.SQLitePath
	}
	if os.Getenv("REDIS_ADDR") == "" && saved.Storage.RedisAddr != "" {
		cfg.Storage.RedisAddr = saved.Storage.RedisAddr
	}
}

// GetCurrentConfig returns a copy of the current configuration.
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{Port: "8501", DataDir: "data", ProjectStore: "file"}
		}
		return newAppConfig(baseConfig)
	}

	return currentConfig.clone()
}

func (c *AppConfig) clone() *AppConfig {
	cp := *c
	cp.LLMConfig = make(map[string]string, len(c.LLMConfig))
	for k, v := range c.LLMConfig {
		cp.LLMConfig[k] = v
	}
	return &cp
}

// UpdateLLMConfig replaces the provider settings. A blank api_key keeps the current key.
func UpdateLLMConfig(provider string, llmConfig map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}

	merged := make(map[string]string, len(llmConfig)+1)
	for k, v := range llmConfig {
		merged[k] = v
	}
	if merged["api_key"] == "" {
		merged["api_key"] = currentConfig.LLMConfig["api_key"]
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = merged
	currentConfig.GeminiAPIKey = merged["api_key"]

	return saveLocked()
}

// UpdateAnalyzerSettings validates and persists new analyzer tuning.
// Invalid settings return an error wrapping ErrInvalidConfig.
func UpdateAnalyzerSettings(settings AnalyzerSettings) error {
	if err := ValidateAnalyzer(settings); err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("configuration not initialized")
	}
	currentConfig.Analyzer = settings
	return saveLocked()
}

// SaveConfig writes the current settings to settings.yaml.
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("no configuration to save")
	}

	persisted := currentConfig.clone()
	delete(persisted.LLMConfig, "api_key")

	data, err := yaml.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp := configFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, configFile)
}
