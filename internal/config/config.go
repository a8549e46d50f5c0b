package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/dropsight/internal/utils"
)

// Overlap policies for a file submitted while another is still loading.
const (
	OverlapIgnore  = "ignore"
	OverlapRestart = "restart"
)

// Global configuration structure.
type Global struct {
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	ListenAddr     string `mapstructure:"listen_addr" yaml:"listen_addr"`
	OpenBrowser    bool   `mapstructure:"open_browser" yaml:"open_browser"`
	OverlapPolicy  string `mapstructure:"overlap_policy" yaml:"overlap_policy"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Insight extraction thresholds
	MaxRows          int     `mapstructure:"max_rows" yaml:"max_rows"`
	OutlierThreshold float64 `mapstructure:"outlier_threshold" yaml:"outlier_threshold"`
	MinCorrelation   float64 `mapstructure:"min_correlation" yaml:"min_correlation"`
	MinTrendR2       float64 `mapstructure:"min_trend_r2" yaml:"min_trend_r2"`
	MinMajorityShare float64 `mapstructure:"min_majority_share" yaml:"min_majority_share"`
}

// Defaults returns the built-in configuration.
func Defaults() *Global {
	return &Global{
		MaxUploadBytes:   10 * 1024 * 1024,
		ListenAddr:       "127.0.0.1:8537",
		OverlapPolicy:    OverlapIgnore,
		LogLevel:         "info",
		LogFormat:        "text",
		MaxRows:          100000,
		OutlierThreshold: 3.5,
		MinCorrelation:   0.6,
		MinTrendR2:       0.6,
		MinMajorityShare: 0.5,
	}
}

// Validate rejects values the rest of the program cannot work with.
func (c *Global) Validate() error {
	var errs []error
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	switch c.OverlapPolicy {
	case OverlapIgnore, OverlapRestart:
	default:
		errs = append(errs, fmt.Errorf("overlap_policy must be %q or %q, got %q", OverlapIgnore, OverlapRestart, c.OverlapPolicy))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr must not be empty"))
	}
	if c.MinCorrelation < 0 || c.MinCorrelation > 1 {
		errs = append(errs, fmt.Errorf("min_correlation must be within [0,1], got %v", c.MinCorrelation))
	}
	if c.MinTrendR2 < 0 || c.MinTrendR2 > 1 {
		errs = append(errs, fmt.Errorf("min_trend_r2 must be within [0,1], got %v", c.MinTrendR2))
	}
	if c.MinMajorityShare < 0 || c.MinMajorityShare > 1 {
		errs = append(errs, fmt.Errorf("min_majority_share must be within [0,1], got %v", c.MinMajorityShare))
	}
	return errors.Join(errs...)
}

// DefaultPath returns ~/.dropsight/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".dropsight", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.dropsight/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A .env file in the working
// directory is loaded first and never overrides variables already set.
func Load(cfgFile string) (*Global, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DROPSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("max_upload_bytes", d.MaxUploadBytes)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("open_browser", d.OpenBrowser)
	v.SetDefault("overlap_policy", d.OverlapPolicy)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("max_rows", d.MaxRows)
	v.SetDefault("outlier_threshold", d.OutlierThreshold)
	v.SetDefault("min_correlation", d.MinCorrelation)
	v.SetDefault("min_trend_r2", d.MinTrendR2)
	v.SetDefault("min_majority_share", d.MinMajorityShare)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(p))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(cfgFile != "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.OverlapPolicy = strings.ToLower(strings.TrimSpace(c.OverlapPolicy))
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}
