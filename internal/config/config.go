package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Enclave    EnclaveConfig    `yaml:"enclave"`
	Settlement SettlementConfig `yaml:"settlement"`
	AMM        AMMConfig        `yaml:"amm"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
	CORS       CORSConfig       `yaml:"cors"`
	Admin      AdminConfig      `yaml:"admin"`
	JWT        JWTConfig        `yaml:"jwt"`
	Chain      ChainConfig      `yaml:"chain"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	EnclavePort    int      `yaml:"enclavePort"`    // listen port of cmd/enclave
	TrustedProxies []string `yaml:"trustedProxies"` // empty: X-Forwarded-For is ignored
}

// Addr returns host:port for the relay API.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig Database configuration. An empty DSN disables indexing.
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration. An empty URL disables publishing.
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	SubjectPrefix   string `yaml:"subject_prefix"`
}

// EnclaveConfig selects a local signing key or a remote enclave.
type EnclaveConfig struct {
	PrivateKey string `yaml:"privateKey"` // hex, local enclave
	RemoteURL  string `yaml:"remoteUrl"`  // remote enclave base URL; wins over PrivateKey in the relay
	AuthToken  string `yaml:"authToken"`
	Timeout    int    `yaml:"timeout"` // request timeout (seconds)
}

// SettlementConfig release window and relay cadence. Durations are seconds.
type SettlementConfig struct {
	MinDelay        int `yaml:"minDelay"`
	MaxDelay        int `yaml:"maxDelay"`
	SubmissionSlack int `yaml:"submissionSlack"`
	BatchInterval   int `yaml:"batchInterval"`
	MaxBatchSize    int `yaml:"maxBatchSize"`
	KeeperInterval  int `yaml:"keeperInterval"`
	WrapWorkers     int `yaml:"wrapWorkers"`
	Quarantine      int `yaml:"quarantine"` // seconds an intent that broke a batch is held back
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (s SettlementConfig) MinDelayDuration() time.Duration        { return seconds(s.MinDelay) }
func (s SettlementConfig) MaxDelayDuration() time.Duration        { return seconds(s.MaxDelay) }
func (s SettlementConfig) SubmissionSlackDuration() time.Duration { return seconds(s.SubmissionSlack) }
func (s SettlementConfig) BatchIntervalDuration() time.Duration   { return seconds(s.BatchInterval) }
func (s SettlementConfig) KeeperIntervalDuration() time.Duration  { return seconds(s.KeeperInterval) }
func (s SettlementConfig) QuarantineDuration() time.Duration      { return seconds(s.Quarantine) }

// AMMConfig reference market maker pools
type AMMConfig struct {
	FeeBps uint64       `yaml:"feeBps"`
	Pools  []PoolConfig `yaml:"pools"`
}

// PoolConfig one pool and its initial reserves (decimal strings)
type PoolConfig struct {
	TokenA   string `yaml:"tokenA"`
	TokenB   string `yaml:"tokenB"`
	ReserveA string `yaml:"reserveA"`
	ReserveB string `yaml:"reserveB"`
}

// BootstrapConfig ledger owner and initial balances of the in-process bank
type BootstrapConfig struct {
	Owner    string          `yaml:"owner"`
	Balances []BalanceConfig `yaml:"balances"`
}

// BalanceConfig one minted balance
type BalanceConfig struct {
	Token   string `yaml:"token"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs   []string `yaml:"allowedIPs"` // IPs or CIDR ranges; empty means localhost only
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"passwordHash"` // bcrypt
	TOTPSecret   string   `yaml:"totpSecret"`
	JWTSecret    string   `yaml:"jwtSecret"`
}

// JWTConfig user session tokens
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expireHours"`
	Issuer      string `yaml:"issuer"`
}

// ChainConfig optional chain head clock
type ChainConfig struct {
	RPCURL        string `yaml:"rpcUrl"`
	UseChainClock bool   `yaml:"useChainClock"`
}

// LogConfig logrus level and formatter
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

var AppConfig *Config

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	setInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	setString := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}

	setString(&cfg.Server.Host, "0.0.0.0")
	setInt(&cfg.Server.Port, 8080)
	setInt(&cfg.Server.EnclavePort, 8090)
	setString(&cfg.Database.Driver, "postgres")

	setInt(&cfg.NATS.Timeout, 10)
	setInt(&cfg.NATS.ReconnectWait, 2)
	setInt(&cfg.NATS.MaxReconnects, 10)
	setString(&cfg.NATS.SubjectPrefix, "ledger.events")

	setInt(&cfg.Enclave.Timeout, 30)

	s := &cfg.Settlement
	setInt(&s.MinDelay, 60)
	setInt(&s.MaxDelay, 180)
	setInt(&s.SubmissionSlack, 15)
	setInt(&s.BatchInterval, 10)
	setInt(&s.MaxBatchSize, 64)
	setInt(&s.KeeperInterval, 5)
	setInt(&s.WrapWorkers, 4)
	setInt(&s.Quarantine, 10*s.BatchInterval)

	if cfg.AMM.FeeBps == 0 {
		cfg.AMM.FeeBps = 30
	}

	setInt(&cfg.JWT.ExpireHours, 24)
	setString(&cfg.JWT.Issuer, "stealth-settlement")
	setString(&cfg.Admin.Username, "admin")

	setString(&cfg.Log.Level, "info")
	setString(&cfg.Log.Format, "text")
}

// Validate rejects configurations the ledger cannot run with.
func (c *Config) Validate() error {
	s := c.Settlement
	if s.MinDelay <= 0 || s.MaxDelay < s.MinDelay {
		return fmt.Errorf("settlement: invalid delay window [%d, %d]", s.MinDelay, s.MaxDelay)
	}
	if s.MinDelay+s.SubmissionSlack > s.MaxDelay {
		return fmt.Errorf("settlement: minDelay + submissionSlack exceeds maxDelay")
	}
	if s.MaxBatchSize <= 0 {
		return fmt.Errorf("settlement: maxBatchSize must be positive")
	}
	if c.AMM.FeeBps >= 10_000 {
		return fmt.Errorf("amm: feeBps must be below 10000")
	}
	return nil
}

// Load reads a configuration file, applies environment overrides and
// defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Infof("🔧 Using local configuration file: config.local.yaml")
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		logrus.Infof("✅ Loading configuration from %s", configPath)
	case os.IsNotExist(err):
		logrus.Warnf("⚠️ Config file %s not found, using defaults and environment", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if len(config.Admin.AllowedIPs) > 0 {
		logrus.Infof("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured", len(config.Admin.AllowedIPs))
	} else {
		logrus.Infof("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)")
	}
	logrus.Infof("📋 [Config] Release window [%ds, %ds], batch every %ds",
		config.Settlement.MinDelay, config.Settlement.MaxDelay, config.Settlement.BatchInterval)
	return &config, nil
}

// LoadConfig loads the configuration into AppConfig.
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			logrus.Warnf("⚠️ [Config] Ignoring %s=%q: %v", key, v, err)
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// overrideFromEnv environment wins over the file for secrets and deploy-time values
func overrideFromEnv(config *Config) {
	envString("DATABASE_URL", &config.Database.DSN)
	envString("DATABASE_DSN", &config.Database.DSN)

	envString("SERVER_HOST", &config.Server.Host)
	envInt("SERVER_PORT", &config.Server.Port)
	envInt("ENCLAVE_PORT", &config.Server.EnclavePort)

	envString("NATS_URL", &config.NATS.URL)
	envInt("NATS_TIMEOUT", &config.NATS.Timeout)

	envString("ENCLAVE_PRIVATE_KEY", &config.Enclave.PrivateKey)
	envString("ENCLAVE_REMOTE_URL", &config.Enclave.RemoteURL)
	envString("ENCLAVE_AUTH_TOKEN", &config.Enclave.AuthToken)

	envInt("SETTLEMENT_MIN_DELAY", &config.Settlement.MinDelay)
	envInt("SETTLEMENT_MAX_DELAY", &config.Settlement.MaxDelay)
	envInt("SETTLEMENT_SUBMISSION_SLACK", &config.Settlement.SubmissionSlack)
	envInt("SETTLEMENT_BATCH_INTERVAL", &config.Settlement.BatchInterval)
	envInt("SETTLEMENT_MAX_BATCH_SIZE", &config.Settlement.MaxBatchSize)
	envInt("SETTLEMENT_QUARANTINE", &config.Settlement.Quarantine)

	envString("LEDGER_OWNER", &config.Bootstrap.Owner)

	envString("JWT_SECRET", &config.JWT.Secret)
	envString("ADMIN_USERNAME", &config.Admin.Username)
	envString("ADMIN_PASSWORD_HASH", &config.Admin.PasswordHash)
	envString("ADMIN_TOTP_SECRET", &config.Admin.TOTPSecret)
	envString("ADMIN_JWT_SECRET", &config.Admin.JWTSecret)

	envString("CHAIN_RPC_URL", &config.Chain.RPCURL)
	if v := os.Getenv("CHAIN_CLOCK"); v != "" {
		config.Chain.UseChainClock = v == "true"
	}

	envString("LOG_LEVEL", &config.Log.Level)
	envString("LOG_FORMAT", &config.Log.Format)

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// ConfigureLogging applies the log section to the standard logrus logger.
func ConfigureLogging(cfg LogConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
