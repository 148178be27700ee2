package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "telehealth"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndAnnouncedIP(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE and MEDIA_ANNOUNCED_IP")
	}

	c = validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.DB.SSLMode = "require"
	c.Media.AnnouncedIP = "203.0.113.10"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Media.ListenIP != "0.0.0.0" || c.Media.MinPort != 40000 || c.Media.MaxPort != 49999 {
		t.Fatalf("unexpected media defaults: %+v", c.Media)
	}
	if c.Signaling.MessageTimeout != 10*time.Second {
		t.Fatalf("unexpected message timeout %s", c.Signaling.MessageTimeout)
	}
}

func TestValidate_RejectsInvertedPortRange(t *testing.T) {
	c := validLocal()
	c.Media.MinPort = 50000
	c.Media.MaxPort = 40000
	if err := c.Validate(); err == nil {
		t.Fatalf("expected port range error")
	}
}

func TestValidate_RejectsRedisDBOutOfRange(t *testing.T) {
	c := validLocal()
	c.Redis.DB = 16
	if err := c.Validate(); err == nil {
		t.Fatalf("expected redis db error")
	}
}

func TestLoadFrom_ParsesValues(t *testing.T) {
	v := viper.New()
	for k, val := range map[string]string{
		"APP_ENV":                    "dev",
		"APP_PORT":                   "9000",
		"DB_HOST":                    "db",
		"DB_PORT":                    "5432",
		"DB_USER":                    "u",
		"DB_NAME":                    "n",
		"REDIS_HOST":                 "redis",
		"REDIS_PORT":                 "6379",
		"REDIS_DB":                   "3",
		"JWT_SECRET":                 "s",
		"ICE_STUN_URLS":              "stun:a:3478, stun:b:3478",
		"ICE_TURN_URLS":              "turn:c:3478",
		"ICE_TURN_USERNAME":          "user",
		"ICE_TURN_CREDENTIAL":        "pw",
		"CALL_RING_TIMEOUT":          "45s",
		"CALL_MAX_ACTIVE_PER_DOCTOR": "2",
	} {
		v.Set(k, val)
	}

	c, err := loadFrom(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.Port != 9000 || c.Redis.DB != 3 || c.Calls.RingTimeout != 45*time.Second || c.Calls.MaxActivePerDoctor != 2 {
		t.Fatalf("unexpected config: %+v", c)
	}

	servers := c.ICEServers()
	if len(servers) != 2 {
		t.Fatalf("expected stun and turn entries, got %d", len(servers))
	}
	if len(servers[0].URLs) != 2 || servers[0].URLs[1] != "stun:b:3478" {
		t.Fatalf("unexpected stun urls: %v", servers[0].URLs)
	}
	if servers[1].Username != "user" || servers[1].Credential != "pw" {
		t.Fatalf("unexpected turn credentials: %+v", servers[1])
	}
}

func TestLoadFrom_ReportsBadInteger(t *testing.T) {
	v := viper.New()
	v.Set("APP_PORT", "eighty")
	if _, err := loadFrom(v); err == nil {
		t.Fatalf("expected parse error")
	}
}
