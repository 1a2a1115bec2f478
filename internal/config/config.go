package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig configura un provider OIDC externo.
type ProviderConfig struct {
	Enabled      bool     `yaml:"enabled"`
	IssuerURI    string   `yaml:"issuer_uri"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"` // preferir env PROVIDER_<NAME>_SECRET
	RedirectURI  string   `yaml:"redirect_uri"`
	Scopes       []string `yaml:"scopes"`
}

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// "postgres" | "memory"
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		// "memory" | "redis"
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	JWT struct {
		Issuer string `yaml:"issuer"`
		// Audiences del access/refresh token propios.
		Audiences []string `yaml:"audiences"`
		// Secret HMAC. NUNCA en YAML de prod: usar env JWT_SECRET.
		Secret     string `yaml:"secret"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	// Providers OIDC habilitados, por nombre ("google", "kakao").
	Providers map[string]ProviderConfig `yaml:"providers"`

	Resilience struct {
		// Reintentos por llamada de resolver (sin contar el intento inicial).
		MaxRetries int `yaml:"max_retries"`
		// Fallos consecutivos antes de abrir el breaker por provider.
		BreakerThreshold int    `yaml:"breaker_threshold"`
		BreakerCooldown  string `yaml:"breaker_cooldown"`
		HTTPTimeout      string `yaml:"http_timeout"`
	} `yaml:"resilience"`

	RateLimit struct {
		Enabled bool `yaml:"enabled"`
		// Max requests por IP por ventana sobre los endpoints de auth.
		Max    int    `yaml:"max"`
		Window string `yaml:"window"`
	} `yaml:"rate_limit"`

	Warmup struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"warmup"`

	SMTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		User string `yaml:"user"`
		Pass string `yaml:"pass"`
		From string `yaml:"from"`
	} `yaml:"smtp"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// AccessTTL devuelve el TTL del access token ya parseado.
func (c *Config) AccessTTL() time.Duration { d, _ := time.ParseDuration(c.JWT.AccessTTL); return d }

// RefreshTTL devuelve el TTL del refresh token ya parseado.
func (c *Config) RefreshTTL() time.Duration { d, _ := time.ParseDuration(c.JWT.RefreshTTL); return d }

// BreakerCooldown devuelve el cooldown del circuit breaker ya parseado.
func (c *Config) BreakerCooldown() time.Duration {
	d, _ := time.ParseDuration(c.Resilience.BreakerCooldown)
	return d
}

// HTTPTimeout devuelve el timeout de llamadas salientes ya parseado.
func (c *Config) HTTPTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Resilience.HTTPTimeout)
	return d
}

// RateLimitWindow devuelve la ventana del rate limit ya parseada.
func (c *Config) RateLimitWindow() time.Duration {
	d, _ := time.ParseDuration(c.RateLimit.Window)
	return d
}

// WarmupInterval devuelve el intervalo del warmup ya parseado.
func (c *Config) WarmupInterval() time.Duration {
	d, _ := time.ParseDuration(c.Warmup.Interval)
	return d
}

// Load lee el YAML, aplica defaults y overrides por env, y valida.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "clave"
	}
	if len(c.JWT.Audiences) == 0 {
		c.JWT.Audiences = []string{"clave-api"}
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "168h" // 7d
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "8760h" // 365d
	}
	if c.Resilience.MaxRetries == 0 {
		c.Resilience.MaxRetries = 2
	}
	if c.Resilience.BreakerThreshold == 0 {
		c.Resilience.BreakerThreshold = 5
	}
	if c.Resilience.BreakerCooldown == "" {
		c.Resilience.BreakerCooldown = "30s"
	}
	if c.Resilience.HTTPTimeout == "" {
		c.Resilience.HTTPTimeout = "10s"
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 60
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1m"
	}
	if c.Warmup.Interval == "" {
		c.Warmup.Interval = "24h"
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, p := range c.Providers {
		if len(p.Scopes) == 0 {
			p.Scopes = []string{"openid", "email", "profile"}
			c.Providers[name] = p
		}
	}

	// validate string durations
	for _, s := range []string{c.JWT.AccessTTL, c.JWT.RefreshTTL, c.Resilience.BreakerCooldown, c.Resilience.HTTPTimeout, c.Warmup.Interval, c.RateLimit.Window} {
		if _, err := time.ParseDuration(s); err != nil {
			return nil, fmt.Errorf("config: duración inválida %q: %w", s, err)
		}
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea invariantes que deben fallar al arrancar, no en runtime.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		if strings.TrimSpace(p.IssuerURI) == "" {
			return fmt.Errorf("config: provider %q sin issuer_uri", name)
		}
		if strings.TrimSpace(p.ClientID) == "" {
			return fmt.Errorf("config: provider %q sin client_id", name)
		}
	}
	if strings.EqualFold(c.App.Env, "prod") && c.Storage.Driver == "memory" {
		return fmt.Errorf("config: storage memory no permitido en prod")
	}
	return nil
}

// applyEnvOverrides pisa el YAML con variables de entorno.
// El secret JWT y los client secrets SIEMPRE pueden venir por env.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvBool("WARMUP_ENABLED"); ok {
		c.Warmup.Enabled = v
	}
	if v, ok := getEnvBool("RATE_LIMIT_ENABLED"); ok {
		c.RateLimit.Enabled = v
	}
	// PROVIDER_GOOGLE_SECRET, PROVIDER_KAKAO_SECRET, etc.
	for name, p := range c.Providers {
		key := "PROVIDER_" + strings.ToUpper(name) + "_SECRET"
		if v, ok := getEnvStr(key); ok {
			p.ClientSecret = v
			c.Providers[name] = p
		}
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
