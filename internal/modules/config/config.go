package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"nado_bot/internal/models"
	"nado_bot/pkg/logger"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	envPrefix         = "NADO"
)

// Endpoints — адреса одной сети.
type Endpoints struct {
	REST    string `yaml:"rest"`
	WS      string `yaml:"ws"`
	Archive string `yaml:"archive"`
	ChainID int64  `yaml:"chain_id"`
}

type Account struct {
	ID      int64  `yaml:"id"`
	Network string `yaml:"network"`
	// KeyEnv — имя env с приватным ключом; сам ключ в yaml класть не стоит.
	KeyEnv     string `yaml:"key_env"`
	PrivateKey string `yaml:"private_key"`
	ChatID     int64  `yaml:"chat_id"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token       string `yaml:"token"`
		AdminChatID int64  `yaml:"admin_chat_id"`
	} `yaml:"telegram"`

	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	Log logger.Config `yaml:"log"`

	Tracing struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
		AgentHost   string `yaml:"agent_host"`
	} `yaml:"tracing"`

	Storage struct {
		Driver    string `yaml:"driver"` // postgres | badger | memory
		DSN       string `yaml:"dsn"`
		BadgerDir string `yaml:"badger_dir"`
	} `yaml:"storage"`

	Exchange struct {
		Mode        string                       `yaml:"mode"` // auto | ws | rest
		Timeout     time.Duration                `yaml:"timeout"`
		Retries     int                          `yaml:"retries"`
		WarmTimeout time.Duration                `yaml:"warm_timeout"`
		Networks    map[models.Network]Endpoints `yaml:"networks"`
	} `yaml:"exchange"`

	Runtime struct {
		Tick          time.Duration `yaml:"tick"`
		MaxOpenOrders int           `yaml:"max_open_orders"`
		MaxAttempts   int           `yaml:"max_attempts"`
	} `yaml:"runtime"`

	Trade struct {
		MaxLeverage  int           `yaml:"max_leverage"`
		MinNotional  float64       `yaml:"min_notional"`
		MarginBuffer float64       `yaml:"margin_buffer"`
		RateLimit    time.Duration `yaml:"rate_limit"`
	} `yaml:"trade"`

	Accounts []Account `yaml:"accounts"`
}

var defaultNetworks = map[models.Network]Endpoints{
	models.Testnet: {
		REST:    "https://gateway.test.nado.xyz/v1",
		WS:      "wss://gateway.test.nado.xyz/v1/ws",
		Archive: "https://archive.test.nado.xyz/v1",
		ChainID: 763373,
	},
	models.Mainnet: {
		REST:    "https://gateway.prod.nado.xyz/v1",
		WS:      "wss://gateway.prod.nado.xyz/v1/ws",
		Archive: "https://archive.prod.nado.xyz/v1",
		ChainID: 57073,
	},
}

// Defaults — конфиг без файла; NewConfig накладывает на него yaml и env.
func Defaults() Config {
	var c Config
	c.Service.AdminPort = intFromEnv("ADMIN_PORT", 8081)
	c.Log.Level = getenvDefault("LOG_LEVEL", "info")
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 5
	c.Log.MaxAgeDays = 14
	c.Tracing.ServiceName = "nado_bot"
	c.Tracing.AgentHost = getenvDefault("JAEGER_AGENT", "localhost:6831")
	c.Storage.Driver = getenvDefault("STORAGE_DRIVER", "postgres")
	c.Storage.BadgerDir = "data/badger"

	c.Exchange.Mode = getenvDefault("EXCHANGE_MODE", "auto")
	c.Exchange.Timeout = durationFromEnv("EXCHANGE_TIMEOUT", "10s")
	c.Exchange.Retries = intFromEnv("EXCHANGE_RETRIES", 2)
	c.Exchange.WarmTimeout = durationFromEnv("WARM_TIMEOUT", "10s")
	c.Exchange.Networks = make(map[models.Network]Endpoints, len(defaultNetworks))
	for n, ep := range defaultNetworks {
		c.Exchange.Networks[n] = ep
	}

	c.Runtime.Tick = durationFromEnv("RUNTIME_TICK", "20s")
	c.Runtime.MaxOpenOrders = intFromEnv("MAX_OPEN_ORDERS", 6)
	c.Runtime.MaxAttempts = intFromEnv("MAX_ATTEMPTS", 6)

	c.Trade.MaxLeverage = intFromEnv("MAX_LEVERAGE", 50)
	c.Trade.MinNotional = floatFromEnv("MIN_NOTIONAL", 1)
	c.Trade.MarginBuffer = floatFromEnv("MARGIN_BUFFER", 0.95)
	c.Trade.RateLimit = durationFromEnv("TRADE_RATE_LIMIT", "60s")
	return c
}

func NewConfig() (*Config, error) {
	// .env опционален
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}
	defer func() {
		_ = file.Close()
	}()

	config := Defaults()
	if err := Decode(file, &config); err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}
	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Decode читает yaml поверх уже заполненных дефолтов; сети дополняются, а не заменяются.
func Decode(r io.Reader, c *Config) error {
	defaults := c.Exchange.Networks
	c.Exchange.Networks = nil
	if err := yaml.NewDecoder(r).Decode(c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	merged := make(map[models.Network]Endpoints, len(defaults))
	for n, ep := range defaults {
		merged[n] = ep
	}
	for n, ep := range c.Exchange.Networks {
		base := merged[n]
		if ep.REST != "" {
			base.REST = ep.REST
		}
		if ep.WS != "" {
			base.WS = ep.WS
		}
		if ep.Archive != "" {
			base.Archive = ep.Archive
		}
		if ep.ChainID != 0 {
			base.ChainID = ep.ChainID
		}
		merged[n] = base
	}
	c.Exchange.Networks = merged
	return nil
}

// applyEnv — последние оверрайды из окружения: TELEGRAM_TOKEN, DATABASE_DSN и NADO_*.
func applyEnv(c *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.token", tokenTelegramENV)
	_ = v.BindEnv("storage.dsn", databaseDSN)

	if s := v.GetString("telegram.token"); s != "" {
		c.Telegram.Token = s
	}
	if s := v.GetString("storage.dsn"); s != "" {
		c.Storage.DSN = s
	}
	if s := v.GetString("storage.driver"); s != "" {
		c.Storage.Driver = s
	}
	if s := v.GetString("exchange.mode"); s != "" {
		c.Exchange.Mode = s
	}
	if s := v.GetString("log.level"); s != "" {
		c.Log.Level = s
	}
	if v.IsSet("tracing.enabled") {
		c.Tracing.Enabled = v.GetBool("tracing.enabled")
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn is required for postgres")
		}
	case "badger", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Exchange.Mode {
	case "auto", "ws", "rest":
	default:
		return fmt.Errorf("config: unknown exchange mode %q", c.Exchange.Mode)
	}
	for _, a := range c.Accounts {
		if _, ok := models.ParseNetwork(a.Network); !ok {
			return fmt.Errorf("config: account %d: unknown network %q", a.ID, a.Network)
		}
	}
	return nil
}

// Key — ключ аккаунта: из env KeyEnv, иначе из yaml.
func (a Account) Key() string {
	if a.KeyEnv != "" {
		if v := os.Getenv(a.KeyEnv); v != "" {
			return v
		}
	}
	return a.PrivateKey
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
