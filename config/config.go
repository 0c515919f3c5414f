/*
Package config loads application configuration.

PURPOSE:
  Central configuration for the server and batch runner: HTTP port,
  database path, the certificate directory root, the resolution mode,
  and the critical activity keyword table used in keyword mode.

PRECEDENCE:
  defaults < config file < environment (prefix ACTA_, dots become
  underscores, e.g. ACTA_DATABASE_PATH).

CONFIG FILE:
  ACTA_CONFIG points at an explicit file; otherwise acta.yaml is
  looked up in the working directory. A missing file is not an error -
  defaults plus environment cover the common single-project setup.
*/
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/warp/acta-engine/reconcile"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Paths    PathsConfig
	Review   ReviewConfig
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// PathsConfig locates the certificate directory tree. Certificates are
// read from <base_root>/<project>/control_actas/actas/<period>/ and
// outputs land beside them under salidas/ and resumen/.
type PathsConfig struct {
	BaseRoot string `mapstructure:"base_root"`
	Project  string
}

// ReviewConfig selects the resolution strategy.
type ReviewConfig struct {
	// Mode is "exact" or "keyword".
	Mode string

	// CriticalActivities maps keyword -> reference price for keyword
	// mode. Keys are normalized at resolver construction.
	CriticalActivities map[string]float64 `mapstructure:"critical_activities"`
}

// defaultCriticalActivities is the built-in keyword table. Overridable
// per deployment via config file.
var defaultCriticalActivities = map[string]float64{
	"EXCAVACION MECANICA":          1000,
	"BASE GRANULAR":                1000,
	"SUBBASE GRANULAR":             1000,
	"ESTABILIZACION DE SUBRASANTE": 4500,
	"ESTABILIZACION CON RAJON":     4500,
	"ESTABILIZACION CON RCD":       4500,
}

// Load reads configuration from file and env. Env var overrides use
// prefix ACTA_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "actas.db")
	v.SetDefault("paths.base_root", ".")
	v.SetDefault("paths.project", "")
	v.SetDefault("review.mode", string(reconcile.ModeExact))
	v.SetDefault("review.critical_activities", defaultCriticalActivities)

	v.SetConfigType("yaml")

	if cfgPath := os.Getenv("ACTA_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("acta")
	}

	v.SetEnvPrefix("ACTA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Mode returns the configured resolution mode.
func (c Config) Mode() reconcile.Mode {
	return reconcile.Mode(c.Review.Mode)
}

func (c Config) validate() error {
	switch reconcile.Mode(c.Review.Mode) {
	case reconcile.ModeExact, reconcile.ModeKeyword:
	default:
		return fmt.Errorf("review.mode must be %q or %q, got %q",
			reconcile.ModeExact, reconcile.ModeKeyword, c.Review.Mode)
	}
	if c.Mode() == reconcile.ModeKeyword && len(c.Review.CriticalActivities) == 0 {
		return fmt.Errorf("keyword mode needs at least one critical activity")
	}
	return nil
}
