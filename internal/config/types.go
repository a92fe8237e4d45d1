package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration accepts both Go duration strings ("30s", "5m") and bare integer
// seconds, the same flexibility any-hub's config layer gives operators.
type Duration time.Duration

// UnmarshalText lets Viper decode "30s"-style strings or plain seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue returns the real time.Duration for callers to compute with.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig describes process-wide behavior: where the HTTP listener
// binds, how the cache and temp directories are laid out, how the
// convergence loop is paced, and how logging/admin access are configured.
type GlobalConfig struct {
	ListenPort       int      `mapstructure:"ListenPort"`
	LogLevel         string   `mapstructure:"LogLevel"`
	LogFilePath      string   `mapstructure:"LogFilePath"`
	LogMaxSize       int      `mapstructure:"LogMaxSize"`
	LogMaxBackups    int      `mapstructure:"LogMaxBackups"`
	LogCompress      bool     `mapstructure:"LogCompress"`
	StoragePath      string   `mapstructure:"StoragePath"`
	UpstreamTimeout  Duration `mapstructure:"UpstreamTimeout"`
	ConvergeInterval Duration `mapstructure:"ConvergeInterval"`
	ShardCount       int      `mapstructure:"ShardCount"`
	ProbeConcurrency int      `mapstructure:"ProbeConcurrency"`
	AdminUsername    string   `mapstructure:"AdminUsername"`
	AdminPassword    string   `mapstructure:"AdminPassword"`
}

// Config is the full TOML-mapped structure: global behavior plus the two
// lists fixed at startup — known registries and upstreams.
type Config struct {
	Global     GlobalConfig `mapstructure:",squash"`
	Registries []string     `mapstructure:"Registries"`
	Upstreams  []string     `mapstructure:"Upstreams"`
}

// HasAdminAuth reports whether admin endpoints should be gated by basic auth.
func (g GlobalConfig) HasAdminAuth() bool {
	return g.AdminUsername != "" && g.AdminPassword != ""
}
