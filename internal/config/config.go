package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Environment variable names
const (
	EnvDevMode    = "LALAPANEL_DEV"        // Set to "1" for development mode
	EnvDataDir    = "LALAPANEL_DATA_DIR"   // Override data directory
	EnvSitesDir   = "LALAPANEL_SITES_DIR"  // Override sites root
	EnvLogDir     = "LALAPANEL_LOG_DIR"    // Override log directory
	EnvConfigDir  = "LALAPANEL_CONFIG_DIR" // Override config directory
	EnvListenAddr = "LALAPANEL_LISTEN"     // Override panel listen address
	EnvACMEDir    = "LALAPANEL_ACME_DIR"   // Override ACME directory URL (staging)
)

// Config is the panel runtime configuration.
type Config struct {
	DataDir   string `json:"data_dir"`
	SitesDir  string `json:"sites_dir"`
	LogDir    string `json:"log_dir"`
	ConfigDir string `json:"config_dir"`

	NginxAvailableDir string `json:"nginx_available_dir"`
	NginxEnabledDir   string `json:"nginx_enabled_dir"`
	CertsDir          string `json:"certs_dir"`
	SSHDConfigPath    string `json:"sshd_config_path"`

	ListenAddr string `json:"listen_addr"`
	JWTSecret  string `json:"jwt_secret"`

	ACMEEmail        string   `json:"acme_email"`
	ACMEDirectoryURL string   `json:"acme_directory_url,omitempty"`
	PHPVersions      []string `json:"php_versions"`
}

var (
	cfg     *Config
	cfgOnce sync.Once
	cfgMu   sync.RWMutex
)

// IsDevMode returns true if running in development mode.
func IsDevMode() bool {
	return os.Getenv(EnvDevMode) == "1"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// DefaultConfig returns the default configuration for the current mode.
func DefaultConfig() *Config {
	var dataDir, sitesDir, logDir, configDir string
	if IsDevMode() {
		cwd, _ := os.Getwd()
		dataDir = getEnvOrDefault(EnvDataDir, filepath.Join(cwd, ".lalapanel", "data"))
		sitesDir = getEnvOrDefault(EnvSitesDir, filepath.Join(cwd, ".lalapanel", "sites"))
		logDir = getEnvOrDefault(EnvLogDir, filepath.Join(cwd, ".lalapanel", "logs"))
		configDir = getEnvOrDefault(EnvConfigDir, filepath.Join(cwd, ".lalapanel"))
	} else {
		dataDir = getEnvOrDefault(EnvDataDir, "/var/lib/lalapanel")
		sitesDir = getEnvOrDefault(EnvSitesDir, "/var/www")
		logDir = getEnvOrDefault(EnvLogDir, "/var/log/lalapanel")
		configDir = getEnvOrDefault(EnvConfigDir, "/etc/lalapanel")
	}

	return &Config{
		DataDir:           dataDir,
		SitesDir:          sitesDir,
		LogDir:            logDir,
		ConfigDir:         configDir,
		NginxAvailableDir: "/etc/nginx/sites-available",
		NginxEnabledDir:   "/etc/nginx/sites-enabled",
		CertsDir:          filepath.Join(dataDir, "certs"),
		SSHDConfigPath:    "/etc/ssh/sshd_config",
		ListenAddr:        getEnvOrDefault(EnvListenAddr, ":8080"),
		ACMEEmail:         "admin@localhost",
		ACMEDirectoryURL:  os.Getenv(EnvACMEDir),
		PHPVersions:       []string{"8.3", "8.2", "8.1"},
	}
}

// DefaultConfigPath returns the default config file path based on mode.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfig().ConfigDir, "config.json")
}

// Load loads configuration from file or creates the default.
func Load(configPath string) (*Config, error) {
	cfgOnce.Do(func() {
		cfg = DefaultConfig()

		if configPath == "" {
			configPath = DefaultConfigPath()
		}

		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				_ = Save(configPath)
			}
			return
		}

		_ = json.Unmarshal(data, cfg)
	})

	return cfg, nil
}

// Save persists configuration to the given path.
func Save(configPath string) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()

	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}
