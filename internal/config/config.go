package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config represents the MACA engine configuration
type Config struct {
	// Analysis endpoint settings (OpenAI-compatible vision API)
	AnalysisURL    string `json:"analysis_url"`
	AnalysisModel  string `json:"analysis_model"`
	AnalysisAPIKey string `json:"analysis_api_key"`

	// Auto-processing gates
	AutoOnUpload bool `json:"auto_on_upload"`
	AutoOnSelect bool `json:"auto_on_select"`

	// Safety fuse: cap on queued items per tab before the queue trips
	FuseEnabled bool `json:"fuse_enabled"`
	FuseMax     int  `json:"fuse_max"`

	// Extension bridge
	BridgeListenAddr string `json:"bridge_listen_addr"`
	BridgeToken      string `json:"bridge_token"`

	// WordPress REST applier (optional; the bridge applier is the default)
	WPRestBase    string `json:"wp_rest_base"`
	WPRestUser    string `json:"wp_rest_user"`
	WPAppPassword string `json:"wp_app_password"`

	// UI preferences
	Theme string `json:"theme"`
	Debug bool   `json:"debug"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		AnalysisURL:      "http://localhost:1234",
		AnalysisModel:    "auto",
		AutoOnUpload:     true,
		AutoOnSelect:     false,
		FuseEnabled:      true,
		FuseMax:          24,
		BridgeListenAddr: "127.0.0.1:17621",
		Theme:            "maca",
		Debug:            false,
	}
}

// Manager handles configuration loading and saving
type Manager struct {
	baseDir    string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager rooted at baseDir
// (usually the user's home directory).
func NewManager(baseDir string) *Manager {
	macaDir := filepath.Join(baseDir, ".maca")
	return &Manager{
		baseDir:    baseDir,
		configPath: filepath.Join(macaDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, creating defaults if needed
func (m *Manager) Load() error {
	// Ensure .maca directory exists
	macaDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(macaDir, 0o755); err != nil {
		return fmt.Errorf("failed to create .maca directory: %w", err)
	}

	// Create .gitignore if it doesn't exist
	if err := m.ensureGitignore(); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}

	// Check if config file exists
	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		// Create default config
		return m.Save()
	}

	// Read existing config
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Expand environment variables
	m.expandEnvVars(&config)

	// Clamp the fuse so a typo can never disable the safety cap entirely
	if config.FuseMax < 5 {
		config.FuseMax = 5
	}

	m.config = &config
	return nil
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// Set updates a configuration value and saves
func (m *Manager) Set(key, value string) error {
	switch key {
	case "analysis_url":
		m.config.AnalysisURL = value
	case "analysis_model":
		m.config.AnalysisModel = value
	case "analysis_api_key":
		m.config.AnalysisAPIKey = value
	case "auto_on_upload":
		m.config.AutoOnUpload = value == "true"
	case "auto_on_select":
		m.config.AutoOnSelect = value == "true"
	case "fuse_enabled":
		m.config.FuseEnabled = value == "true"
	case "fuse_max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("fuse_max must be a number: %w", err)
		}
		if n < 5 {
			n = 5
		}
		m.config.FuseMax = n
	case "bridge_listen_addr":
		m.config.BridgeListenAddr = value
	case "bridge_token":
		m.config.BridgeToken = value
	case "wp_rest_base":
		m.config.WPRestBase = value
	case "wp_rest_user":
		m.config.WPRestUser = value
	case "wp_app_password":
		m.config.WPAppPassword = value
	case "theme":
		m.config.Theme = value
	case "debug":
		m.config.Debug = value == "true"
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	return m.Save()
}

// ensureGitignore creates a .gitignore in .maca/ with smart defaults
func (m *Manager) ensureGitignore() error {
	gitignorePath := filepath.Join(filepath.Dir(m.configPath), ".gitignore")

	// Check if .gitignore already exists
	if _, err := os.Stat(gitignorePath); !os.IsNotExist(err) {
		return nil // Already exists
	}

	gitignoreContent := `# MACA data directory .gitignore
#
# The config file can hold API keys through env expansion, but if you put
# secrets in it directly, keep this directory out of version control.

*.log
*.tmp
.DS_Store

cache/
tmp/
`

	return os.WriteFile(gitignorePath, []byte(gitignoreContent), 0o644)
}

// expandEnvVars expands environment variables in config values
func (m *Manager) expandEnvVars(config *Config) {
	config.AnalysisURL = m.expandString(config.AnalysisURL)
	config.AnalysisAPIKey = m.expandString(config.AnalysisAPIKey)
	config.BridgeToken = m.expandString(config.BridgeToken)
	config.WPRestBase = m.expandString(config.WPRestBase)
	config.WPRestUser = m.expandString(config.WPRestUser)
	config.WPAppPassword = m.expandString(config.WPAppPassword)
}

// expandString expands environment variables in a string
// Supports $VAR and ${VAR} syntax
func (m *Manager) expandString(s string) string {
	// Regular expression to match $VAR or ${VAR}
	re := regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			// ${VAR} format
			varName = match[2 : len(match)-1]
		} else {
			// $VAR format
			varName = match[1:]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Return original if env var not found
		return match
	})
}
