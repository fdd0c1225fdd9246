// Package config loads and saves the engine's config.yaml. Values resolve
// with the usual precedence: environment variable, then config file, then
// built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the recognized, closed set of config.yaml options.
type Config struct {
	Version     int            `yaml:"version"`
	ProjectName string         `yaml:"project_name"`
	Scan        ScanConfig     `yaml:"scan"`
	Stitcher    StitcherConfig `yaml:"stitcher"`
	Risk        RiskConfig     `yaml:"risk"`
	Storage     StorageConfig  `yaml:"storage"`
}

// ScanConfig controls the walker/dispatcher include/exclude globs and
// post-stitch edge filtering.
type ScanConfig struct {
	Include       []string `yaml:"include"`
	Exclude       []string `yaml:"exclude"`
	MinConfidence float64  `yaml:"min_confidence"`
}

// StitcherConfig controls the stitcher's rule selection and token-overlap
// thresholds.
type StitcherConfig struct {
	Rules            []string `yaml:"rules"`
	MinOverlapTokens int      `yaml:"min_overlap_tokens"`
	WeakTokens       []string `yaml:"weak_tokens"`
	WeakTokenPenalty float64  `yaml:"weak_token_penalty"`
}

// RiskConfig controls the diff analyzer's critical-path categorization.
type RiskConfig struct {
	CriticalPaths []string `yaml:"critical_paths"`
}

// StorageConfig selects and configures the store backend. DSNs and
// credentials should come from the environment or .env files, not from a
// committed config.yaml.
type StorageConfig struct {
	Type        string `yaml:"type"` // "sqlite", "postgres", "neo4j", "json"
	Path        string `yaml:"path"` // sqlite / json document file path
	PostgresDSN string `yaml:"postgres_dsn"`
	Neo4jURI    string `yaml:"neo4j_uri"`
	Neo4jUser   string `yaml:"neo4j_user"`
	Neo4jPass   string `yaml:"neo4j_pass"`
}

// Default returns the built-in defaults, tuned so exact-name matches land
// at 1.0 and a single shared significant token lands around 0.5.
func Default() *Config {
	return &Config{
		Version:     1,
		ProjectName: "",
		Scan: ScanConfig{
			Include: []string{"**/*"},
			Exclude: []string{
				"**/node_modules/**", "**/venv/**", "**/.venv/**",
				"**/__pycache__/**", "**/.git/**", "**/dist/**",
				"**/build/**", "**/.next/**", "**/.cache/**",
				"**/target/**", "**/vendor/**",
			},
			MinConfidence: 0.3,
		},
		Stitcher: StitcherConfig{
			Rules:            []string{"env_to_infra", "infra_to_config", "infra_to_infra", "data_alias"},
			MinOverlapTokens: 1,
			WeakTokens:       []string{"id", "name", "key", "value", "data", "config", "env", "var"},
			WeakTokenPenalty: 0.5,
		},
		Risk: RiskConfig{
			CriticalPaths: []string{},
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: ".jnkn/jnkn.db",
		},
	}
}

// Load reads config.yaml from path (or searches `.jnkn/config.yaml` and
// `./config.yaml` when path is empty), applying JNKN_-prefixed environment
// overrides on top.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("version", cfg.Version)
	v.SetDefault("project_name", cfg.ProjectName)
	v.SetDefault("scan", cfg.Scan)
	v.SetDefault("stitcher", cfg.Stitcher)
	v.SetDefault("risk", cfg.Risk)
	v.SetDefault("storage", cfg.Storage)

	v.SetEnvPrefix("JNKN")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".jnkn")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Decode through yaml.v3 so the struct's yaml tags (project_name,
	// min_confidence, ...) name the keys, as they do in Save.
	raw, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence, for store DSNs
// (postgres/neo4j credentials) that should never live in config.yaml.
func loadEnvFiles() {
	envFiles := []string{".env.local", ".env"}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err == nil {
				continue
			}
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("JNKN_POSTGRES_DSN"); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if uri := os.Getenv("JNKN_NEO4J_URI"); uri != "" {
		cfg.Storage.Neo4jURI = uri
	}
	if user := os.Getenv("JNKN_NEO4J_USER"); user != "" {
		cfg.Storage.Neo4jUser = user
	}
	if pass := os.Getenv("JNKN_NEO4J_PASS"); pass != "" {
		cfg.Storage.Neo4jPass = pass
	}
	if storageType := os.Getenv("JNKN_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if path := os.Getenv("JNKN_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = expandPath(path)
	}
}

func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, path[1:])
}

// Save writes the config back to path.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("version", c.Version)
	v.Set("project_name", c.ProjectName)
	v.Set("scan", c.Scan)
	v.Set("stitcher", c.Stitcher)
	v.Set("risk", c.Risk)
	v.Set("storage", c.Storage)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
