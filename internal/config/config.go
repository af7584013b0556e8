package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RTC struct {
	MinPort       uint16        `mapstructure:"min_port"`
	MaxPort       uint16        `mapstructure:"max_port"`
	ICEServers    []string      `mapstructure:"ice_servers"`
	NATIPs        []string      `mapstructure:"nat_ips"`
	GatherTimeout time.Duration `mapstructure:"gather_timeout"`
}

type Config struct {
	Mode              string        `mapstructure:"mode"`
	Port              int           `mapstructure:"port"`
	StaticPath        string        `mapstructure:"static_path"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	WriteWait         time.Duration `mapstructure:"write_wait"`
	Secret            string        `mapstructure:"secret"`
	LogLevel          string        `mapstructure:"log_level"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReclaimEmptyRooms bool          `mapstructure:"reclaim_empty_rooms"`
	FatalGrace        time.Duration `mapstructure:"fatal_grace"`
	UploadDir         string        `mapstructure:"upload_dir"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
	RateLimit         int           `mapstructure:"rate_limit"`
	RateInterval      time.Duration `mapstructure:"rate_interval"`
	RTC               RTC           `mapstructure:"rtc"`
}

// New returns a viper instance with every default set and env overrides
// (CONCLAVE_ prefix, dots become underscores) enabled.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CONCLAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("reclaim_empty_rooms", true)
	v.SetDefault("fatal_grace", "2s")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("max_upload_bytes", 64<<20)
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("rtc.min_port", 10000)
	v.SetDefault("rtc.max_port", 20000)
	v.SetDefault("rtc.ice_servers", []string{})
	v.SetDefault("rtc.nat_ips", []string{})
	v.SetDefault("rtc.gather_timeout", "2s")
	return v
}

// Load reads config/config.<env>.yaml, or file when it is set, on top of the
// defaults in v. A missing file is not an error.
func Load(v *viper.Viper, env, file string) (*Config, error) {
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	if file == "" {
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.RTC.MinPort > cfg.RTC.MaxPort {
		return nil, fmt.Errorf("rtc.min_port %d above rtc.max_port %d", cfg.RTC.MinPort, cfg.RTC.MaxPort)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}
