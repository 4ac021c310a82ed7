// Package config provides XML-based configuration management for the protocol service.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultFileName is the configuration file looked up next to the executable.
const DefaultFileName = "Feniks.config.xml"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"Feniks"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Document analysis
	Analysis AnalysisConfig `xml:"Analysis"`

	// Document generation
	Generation GenerationConfig `xml:"Generation"`

	// Session processing
	Processing ProcessingConfig `xml:"Processing"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains file and template storage settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	UploadsDirectory  string `xml:"UploadsDirectory"`
	SessionsDirectory string `xml:"SessionsDirectory"`
	TemplateDriver    string `xml:"TemplateDriver"` // "duckdb" or "sqlite"
	TemplateDatabase  string `xml:"TemplateDatabase"`
	EnablePersistence bool   `xml:"EnablePersistence"`
}

// AnalysisConfig selects the analyzer used by the wizard.
type AnalysisConfig struct {
	// RemoteURL, when set, sends documents to an external analysis endpoint
	// instead of the built-in extractor.
	RemoteURL             string `xml:"RemoteURL"`
	MaxConcurrent         int    `xml:"MaxConcurrent"`
	RequestTimeoutSeconds int    `xml:"RequestTimeoutSeconds"` // 0 disables the timeout
	RulesFile             string `xml:"RulesFile"`
	WatchRules            bool   `xml:"WatchRules"`
}

// GenerationConfig controls document generation.
type GenerationConfig struct {
	FilePrefix string `xml:"FilePrefix"`
	// TemplateURL, when set, fetches the active template from a remote
	// template service instead of the local store.
	TemplateURL string `xml:"TemplateURL"`
	// TemplateTimeoutSeconds bounds the remote template request; 0 disables it.
	TemplateTimeoutSeconds int `xml:"TemplateTimeoutSeconds"`
	// MaxProtocols caps the protocol count of one generated document.
	MaxProtocols int `xml:"MaxProtocols"`
}

// ProcessingConfig contains session lifetime settings
type ProcessingConfig struct {
	MaxSessions            int  `xml:"MaxSessions"`
	SessionTimeoutMinutes  int  `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int  `xml:"CleanupIntervalMinutes"`
	EnableCompression      bool `xml:"EnableCompression"`
	CompressionLevel       int  `xml:"CompressionLevel"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowTemplateDeletion bool   `xml:"AllowTemplateDeletion"`
	AcceptedFileTypes     string `xml:"AcceptedFileTypes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			SessionsDirectory: "./data/sessions",
			TemplateDriver:    "duckdb",
			TemplateDatabase:  "./data/templates.db",
			EnablePersistence: true,
		},
		Analysis: AnalysisConfig{
			RemoteURL:             "",
			MaxConcurrent:         1,
			RequestTimeoutSeconds: 0,
			RulesFile:             "./data/defaults/extraction.yaml",
			WatchRules:            true,
		},
		Generation: GenerationConfig{
			FilePrefix:   "Заседание",
			MaxProtocols: 1000,
		},
		Processing: ProcessingConfig{
			MaxSessions:            200,
			SessionTimeoutMinutes:  120,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Security: SecurityConfig{
			AllowTemplateDeletion: true,
			AcceptedFileTypes:     ".docx,.doc",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Feniks protocol service configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.SessionsDirectory = filepath.Join(dataDir, "sessions")
		c.Storage.TemplateDatabase = filepath.Join(dataDir, "templates.db")
	}

	if url := os.Getenv("ANALYSIS_URL"); url != "" {
		c.Analysis.RemoteURL = url
	}

	if driver := os.Getenv("TEMPLATE_DRIVER"); driver != "" {
		c.Storage.TemplateDriver = strings.ToLower(driver)
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.SessionsDirectory,
		&c.Storage.TemplateDatabase,
		&c.Analysis.RulesFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AcceptedFileTypes returns the upload accept hint as a list.
func (c *AppConfig) AcceptedFileTypes() []string {
	var out []string
	for _, t := range strings.Split(c.Security.AcceptedFileTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.SessionsDirectory,
		filepath.Dir(c.Storage.TemplateDatabase),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
