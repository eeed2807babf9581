package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type Config struct {
	Checker struct {
		ReferenceURL      string `json:"reference_url"`
		Timeout           uint32 `json:"timeout"`
		Probes            uint32 `json:"probes"`
		Threshold         uint32 `json:"threshold"`
		Threads           uint32 `json:"threads"`
		FreshDelay        Timer  `json:"fresh_delay"`
		RevalidationDelay Timer  `json:"revalidation_delay"`
		VerdictTTL        Timer  `json:"verdict_ttl"`
		UserAgent         string `json:"user_agent"`
	} `json:"checker"`

	Sources struct {
		Timeout uint32 `json:"timeout"`

		Geonode struct {
			Enabled   bool   `json:"enabled"`
			URL       string `json:"url"`
			APIURL    string `json:"api_url"`
			PageLimit uint32 `json:"page_limit"`
			PageSize  uint32 `json:"page_size"`
			SortBy    string `json:"sort_by"`
			SortType  string `json:"sort_type"`
		} `json:"geonode"`

		FreeProxyList struct {
			Enabled       bool   `json:"enabled"`
			URL           string `json:"url"`
			RespectRobots bool   `json:"respect_robots"`
		} `json:"free_proxy_list"`
	} `json:"sources"`

	Database struct {
		URL string `json:"url"`
	} `json:"database"`

	Output struct {
		DefaultPath string `json:"default_path"`
	} `json:"output"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const (
	settingsFileName = "settings.json"
	homeDirName      = ".proxycrawler"

	// Every protocol check issues exactly checkProbes requests and needs
	// passThreshold of them to succeed; settings cannot loosen this.
	checkProbes   = 3
	passThreshold = 2

	maxGeonodePages    = 100
	maxGeonodePageSize = 500
)

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	cfg, err := DefaultConfig()
	if err != nil {
		cfg = Config{}
	}
	configValue.Store(cfg)
}

// DefaultConfig returns the embedded defaults.
func DefaultConfig() (Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse defaults: %w", err)
	}
	return normalize(cfg), nil
}

// HomeDir is where settings and the default sqlite database live.
func HomeDir() string {
	if dir := os.Getenv("PROXYCRAWLER_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return homeDirName
	}
	return filepath.Join(home, homeDirName)
}

func SettingsFilePath() string {
	return filepath.Join(HomeDir(), settingsFileName)
}

// ReadSettings loads the settings file, writing the defaults first when it
// does not exist yet.
func ReadSettings() error {
	path := SettingsFilePath()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("config: read settings: %w", err)
		}

		log.Warn("Settings file not found, creating with default configuration", "path", path)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("config: create settings directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfig, 0o644); err != nil {
			return fmt.Errorf("config: write default settings: %w", err)
		}
		data = defaultConfig
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return err
	}
	// Unmarshal over the defaults so a partial file keeps the remaining values.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("config: unmarshal settings: %w", err)
	}

	applyConfigUpdate(cfg, "file")
	log.Debug("Settings file loaded successfully", "path", path)
	return nil
}

func SetConfig(newConfig Config) {
	applyConfigUpdate(newConfig, "local")
}

func applyConfigUpdate(newConfig Config, source string) {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(normalize(newConfig))
	log.Debug("Configuration applied", "source", source)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// Validate reports settings that would make a run meaningless.
func (cfg Config) Validate() error {
	var errs []error

	if cfg.Checker.ReferenceURL == "" {
		errs = append(errs, errors.New("checker.reference_url must not be empty"))
	}
	if cfg.Sources.Geonode.Enabled && cfg.Sources.Geonode.APIURL == "" {
		errs = append(errs, errors.New("sources.geonode.api_url must not be empty"))
	}
	if cfg.Sources.FreeProxyList.Enabled && cfg.Sources.FreeProxyList.URL == "" {
		errs = append(errs, errors.New("sources.free_proxy_list.url must not be empty"))
	}

	return errors.Join(errs...)
}

func normalize(cfg Config) Config {
	if cfg.Checker.Probes != checkProbes || cfg.Checker.Threshold != passThreshold {
		if cfg.Checker.Probes != 0 || cfg.Checker.Threshold != 0 {
			log.Warn("Ignoring checker.probes/checker.threshold override", "probes", cfg.Checker.Probes, "threshold", cfg.Checker.Threshold)
		}
		cfg.Checker.Probes = checkProbes
		cfg.Checker.Threshold = passThreshold
	}
	if cfg.Checker.Threads == 0 {
		cfg.Checker.Threads = 1
	}
	if cfg.Sources.Geonode.PageLimit > maxGeonodePages {
		cfg.Sources.Geonode.PageLimit = maxGeonodePages
	}
	if cfg.Sources.Geonode.PageSize == 0 || cfg.Sources.Geonode.PageSize > maxGeonodePageSize {
		cfg.Sources.Geonode.PageSize = maxGeonodePageSize
	}
	return cfg
}
