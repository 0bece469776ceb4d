// Package config loads the single BotConfig struct supplied at startup,
// per spec 6's table. Grounded on life2you-calcs/internal/config/config.go's
// viper-plus-environment-override shape, combined with the teacher's
// env-var credential loading (os.Getenv("PRIVATE_KEY") at strategy
// construction sites) centralized here instead of scattered per-strategy.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cryptoedge/cryptoedge/trading"
)

// Endpoints names the base URLs of the three upstream providers, plus the
// data directory the Persistence Store writes under.
type Endpoints struct {
	GammaURL  string `mapstructure:"gammaUrl"`
	ClobURL   string `mapstructure:"clobUrl"`
	OptionsURL string `mapstructure:"optionsUrl"`
	OracleURL  string `mapstructure:"oracleUrl"`
	DataDir    string `mapstructure:"dataDir"`
}

// Config is the top-level configuration: the trading.BotConfig table plus
// the ambient endpoints and credentials a production run needs.
type Config struct {
	Bot           trading.BotConfig `mapstructure:"bot"`
	Endpoints     Endpoints         `mapstructure:"endpoints"`
	PrivateKeyHex string            `mapstructure:"privateKeyHex"`
	StatusAddr    string            `mapstructure:"statusAddr"`
	LogDir        string            `mapstructure:"logDir"`
}

// configKeys lists every key Load recognizes. AutomaticEnv alone does not
// reach nested struct fields during Unmarshal, so each key is also bound
// explicitly with BindEnv (the fix life2you-calcs's loader works around by
// hand with individual os.Getenv/v.Set calls; binding is the equivalent
// done once, generically, for the whole key set).
var configKeys = []string{
	"bot.startingBalance", "bot.minEdgeToEnter", "bot.maxEdgeToExit",
	"bot.basePositionSize", "bot.edgeMultiplier", "bot.maxPositionSize",
	"bot.maxTotalExposure", "bot.pollInterval", "bot.maxPositionsPerMarket",
	"bot.minTimeToExpiry", "bot.dryRun",
	"endpoints.gammaUrl", "endpoints.clobUrl", "endpoints.optionsUrl",
	"endpoints.oracleUrl", "endpoints.dataDir",
	"statusAddr", "logDir", "privateKeyHex",
}

func defaults(v *viper.Viper) {
	bot := trading.DefaultBotConfig()
	v.SetDefault("bot.startingBalance", bot.StartingBalance)
	v.SetDefault("bot.minEdgeToEnter", bot.MinEdgeToEnter)
	v.SetDefault("bot.maxEdgeToExit", bot.MaxEdgeToExit)
	v.SetDefault("bot.basePositionSize", bot.BasePositionSize)
	v.SetDefault("bot.edgeMultiplier", bot.EdgeMultiplier)
	v.SetDefault("bot.maxPositionSize", bot.MaxPositionSize)
	v.SetDefault("bot.maxTotalExposure", bot.MaxTotalExposure)
	v.SetDefault("bot.pollInterval", bot.PollInterval.String())
	v.SetDefault("bot.maxPositionsPerMarket", bot.MaxPositionsPerMarket)
	v.SetDefault("bot.minTimeToExpiry", bot.MinTimeToExpiry)
	v.SetDefault("bot.dryRun", bot.DryRun)

	v.SetDefault("endpoints.gammaUrl", "https://gamma-api.polymarket.com")
	v.SetDefault("endpoints.clobUrl", "https://clob.polymarket.com")
	v.SetDefault("endpoints.optionsUrl", "https://www.deribit.com/api/v2/public")
	v.SetDefault("endpoints.oracleUrl", "https://api.coingecko.com/api/v3")
	v.SetDefault("endpoints.dataDir", "./data")

	v.SetDefault("statusAddr", ":8090")
	v.SetDefault("logDir", "./logs")

	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
}

// Load reads Config from an optional YAML file at path (skipped if
// path=="" or the file does not exist), a local .env for credentials, and
// CRYPTOEDGE_* environment variable overrides, the latter taking
// precedence over the file per viper's AutomaticEnv ordering.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("CRYPTOEDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	// viper.Unmarshal's default decoder hook already handles the
	// string<->time.Duration conversion for bot.pollInterval.
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := v.GetString("privateKeyHex"); key != "" {
		cfg.PrivateKeyHex = key
	}

	return cfg, nil
}
