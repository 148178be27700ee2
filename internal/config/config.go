package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration required by the API process.
// Values come from env, optionally seeded from a .env file in the working directory.
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Media     MediaConfig
	ICE       ICEConfig
	Calls     CallsConfig
	Signaling SignalingConfig
	Log       LogConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// MediaConfig is read once at start and handed to the media registry.
type MediaConfig struct {
	ListenIP    string
	AnnouncedIP string
	MinPort     int
	MaxPort     int
}

type ICEConfig struct {
	STUNURLs       []string
	TURNURLs       []string
	TURNUsername   string
	TURNCredential string
}

// ICEServer is the client-facing connectivity hint.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type CallsConfig struct {
	// RingTimeout of zero leaves ringing calls open until declined or ended.
	RingTimeout time.Duration
	// MaxActivePerDoctor of zero disables the cap.
	MaxActivePerDoctor int
}

type SignalingConfig struct {
	MessageTimeout time.Duration
	PingInterval   time.Duration
	ReadLimitBytes int64
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	// Missing .env is fine; env vars still apply.
	_ = v.ReadInConfig()

	return loadFrom(v)
}

func loadFrom(v *viper.Viper) (Config, error) {
	c := Config{}
	var parseErrs []error
	str := func(key string) string { return strings.TrimSpace(v.GetString(key)) }
	requiredInt := func(key string) int {
		n, err := mustInt(str(key), key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return n
	}
	optionalInt := func(key string) int {
		if str(key) == "" {
			return 0
		}
		return requiredInt(key)
	}

	c.App.Env = str("APP_ENV")
	c.App.Port = requiredInt("APP_PORT")

	c.DB.Host = str("DB_HOST")
	c.DB.Port = requiredInt("DB_PORT")
	c.DB.User = str("DB_USER")
	c.DB.Password = v.GetString("DB_PASSWORD")
	c.DB.Name = str("DB_NAME")
	c.DB.SSLMode = str("DB_SSLMODE")

	c.Redis.Host = str("REDIS_HOST")
	c.Redis.Port = requiredInt("REDIS_PORT")
	c.Redis.Password = v.GetString("REDIS_PASSWORD")
	c.Redis.DB = optionalInt("REDIS_DB")

	c.Auth.JWTSecret = v.GetString("JWT_SECRET")
	c.Auth.JWTIssuer = str("JWT_ISSUER")
	c.Auth.JWTAudience = str("JWT_AUDIENCE")
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration(str("JWT_ACCESS_TTL"))
	c.Auth.RefreshTokenTTL = mustDuration(str("JWT_REFRESH_TTL"))

	c.Media.ListenIP = str("MEDIA_LISTEN_IP")
	c.Media.AnnouncedIP = str("MEDIA_ANNOUNCED_IP")
	c.Media.MinPort = optionalInt("RTC_MIN_PORT")
	c.Media.MaxPort = optionalInt("RTC_MAX_PORT")

	c.ICE.STUNURLs = splitList(str("ICE_STUN_URLS"))
	c.ICE.TURNURLs = splitList(str("ICE_TURN_URLS"))
	c.ICE.TURNUsername = str("ICE_TURN_USERNAME")
	c.ICE.TURNCredential = v.GetString("ICE_TURN_CREDENTIAL")

	c.Calls.RingTimeout = mustDuration(str("CALL_RING_TIMEOUT"))
	c.Calls.MaxActivePerDoctor = optionalInt("CALL_MAX_ACTIVE_PER_DOCTOR")

	c.Signaling.MessageTimeout = mustDuration(str("SIGNALING_MESSAGE_TIMEOUT"))
	c.Signaling.PingInterval = mustDuration(str("SIGNALING_PING_INTERVAL"))
	c.Signaling.ReadLimitBytes = int64(optionalInt("SIGNALING_READ_LIMIT_BYTES"))

	c.Log.File = str("LOG_FILE")
	c.Log.MaxSizeMB = optionalInt("LOG_MAX_SIZE_MB")
	c.Log.MaxBackups = optionalInt("LOG_MAX_BACKUPS")
	c.Log.MaxAgeDays = optionalInt("LOG_MAX_AGE_DAYS")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	errs = append(errs, c.validateMedia()...)

	if c.Calls.RingTimeout < 0 {
		errs = append(errs, errors.New("CALL_RING_TIMEOUT must not be negative"))
	}
	if c.Calls.MaxActivePerDoctor < 0 {
		errs = append(errs, errors.New("CALL_MAX_ACTIVE_PER_DOCTOR must not be negative"))
	}

	if c.Signaling.MessageTimeout <= 0 {
		c.Signaling.MessageTimeout = 10 * time.Second
	}
	if c.Signaling.PingInterval <= 0 {
		c.Signaling.PingInterval = 25 * time.Second
	}
	if c.Signaling.ReadLimitBytes <= 0 {
		c.Signaling.ReadLimitBytes = 64 * 1024
	}

	if c.Log.File != "" {
		if c.Log.MaxSizeMB <= 0 {
			c.Log.MaxSizeMB = 100
		}
		if c.Log.MaxBackups <= 0 {
			c.Log.MaxBackups = 5
		}
		if c.Log.MaxAgeDays <= 0 {
			c.Log.MaxAgeDays = 14
		}
	}

	return joinErrors(errs)
}

func (c *Config) validateMedia() []error {
	var errs []error
	if c.Media.ListenIP == "" {
		c.Media.ListenIP = "0.0.0.0"
	}
	if net.ParseIP(c.Media.ListenIP) == nil {
		errs = append(errs, fmt.Errorf("MEDIA_LISTEN_IP must be an IP address, got %q", c.Media.ListenIP))
	}
	if c.Media.AnnouncedIP != "" && net.ParseIP(c.Media.AnnouncedIP) == nil {
		errs = append(errs, fmt.Errorf("MEDIA_ANNOUNCED_IP must be an IP address, got %q", c.Media.AnnouncedIP))
	}
	if c.IsProduction() && c.Media.AnnouncedIP == "" {
		errs = append(errs, errors.New("MEDIA_ANNOUNCED_IP is required in production"))
	}
	if c.Media.MinPort == 0 {
		c.Media.MinPort = 40000
	}
	if c.Media.MaxPort == 0 {
		c.Media.MaxPort = 49999
	}
	if c.Media.MinPort < 1024 || c.Media.MaxPort > 65535 || c.Media.MinPort > c.Media.MaxPort {
		errs = append(errs, fmt.Errorf("RTC_MIN_PORT/RTC_MAX_PORT must form a range within 1024-65535, got %d-%d", c.Media.MinPort, c.Media.MaxPort))
	}
	return errs
}

// ICEServers assembles the list handed to clients for connectivity checks.
func (c Config) ICEServers() []ICEServer {
	var out []ICEServer
	if len(c.ICE.STUNURLs) > 0 {
		out = append(out, ICEServer{URLs: c.ICE.STUNURLs})
	}
	if len(c.ICE.TURNURLs) > 0 {
		out = append(out, ICEServer{
			URLs:       c.ICE.TURNURLs,
			Username:   c.ICE.TURNUsername,
			Credential: c.ICE.TURNCredential,
		})
	}
	return out
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(v, key string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(v string) time.Duration {
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
