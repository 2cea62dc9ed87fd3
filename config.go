package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values applied when unset.
const (
	defaultInitialCapital   = float64(10000)
	defaultRiskPerTrade     = 0.02
	defaultMaxOpenPositions = 5
	defaultStopLossPercent  = 0.02
	defaultTakeProfitRatio  = 2.0
	defaultMinConfidence    = 0.6
	defaultMinRiskReward    = 2.0
	defaultMaxPositionSize  = 0.1
	defaultKellyScale       = 0.25
	defaultPollInterval     = time.Second * 15
)

// Config is the configuration struct for the service.
type Config struct {
	// Markets represents the tracked markets.
	Markets []string
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// DatabaseEndpoint is the trade database endpoint, persistence is skipped when unset.
	DatabaseEndpoint string
	// DatabaseUser is the trade database user.
	DatabaseUser string
	// DatabasePass is the trade database user pass.
	DatabasePass string
	// InitialCapital is the starting trading capital.
	InitialCapital float64
	// RiskPerTrade is the fraction of capital risked per trade.
	RiskPerTrade float64
	// MaxOpenPositions is the maximum number of concurrently open positions.
	MaxOpenPositions int
	// StopLossPercent is the stop loss distance as a fraction of the entry price.
	StopLossPercent float64
	// TakeProfitRatio is the profit target distance as a multiple of the stop distance.
	TakeProfitRatio float64
	// MinConfidence is the minimum confidence required to act on an entry signal.
	MinConfidence float64
	// MinRiskReward is the minimum risk reward ratio required for an entry.
	MinRiskReward float64
	// MaxPositionSize is the position size cap as a fraction of capital.
	MaxPositionSize float64
	// KellyScale dampens the kelly sizing adjustment.
	KellyScale float64
	// PollInterval is the interval between price quote polls.
	PollInterval time.Duration

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for tactic service"))
	}
	if cfg.FMPAPIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
	}

	return errs
}

// applyDefaults fills unset risk and polling fields with their defaults.
func (cfg *Config) applyDefaults() {
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = defaultInitialCapital
	}
	if cfg.RiskPerTrade == 0 {
		cfg.RiskPerTrade = defaultRiskPerTrade
	}
	if cfg.MaxOpenPositions == 0 {
		cfg.MaxOpenPositions = defaultMaxOpenPositions
	}
	if cfg.StopLossPercent == 0 {
		cfg.StopLossPercent = defaultStopLossPercent
	}
	if cfg.TakeProfitRatio == 0 {
		cfg.TakeProfitRatio = defaultTakeProfitRatio
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = defaultMinConfidence
	}
	if cfg.MinRiskReward == 0 {
		cfg.MinRiskReward = defaultMinRiskReward
	}
	if cfg.MaxPositionSize == 0 {
		cfg.MaxPositionSize = defaultMaxPositionSize
	}
	if cfg.KellyScale == 0 {
		cfg.KellyScale = defaultKellyScale
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Int64:
		// Only handle time.Duration
		if val.Elem().Type() == reflect.TypeOf(time.Duration(0)) {
			var def time.Duration
			if defValue != "" {
				def, _ = time.ParseDuration(defValue)
			}
			flag.DurationVar(value.(*time.Duration), name, def, usage)
		} else {
			return fmt.Errorf("%s: unsupported type", name)
		}
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("markets", &cfg.Markets, "the tracked markets")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("fmpapikey", &cfg.FMPAPIKey, "the FMP api key")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("databaseendpoint", &cfg.DatabaseEndpoint, "the trade database endpoint")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("databaseuser", &cfg.DatabaseUser, "the trade database user")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("databasepass", &cfg.DatabasePass, "the trade database user pass")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("initialcapital", &cfg.InitialCapital, "the starting trading capital")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("riskpertrade", &cfg.RiskPerTrade, "the fraction of capital risked per trade")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("maxopenpositions", &cfg.MaxOpenPositions, "the maximum number of concurrently open positions")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("stoplosspercent", &cfg.StopLossPercent, "the stop loss distance as a fraction of the entry price")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("takeprofitratio", &cfg.TakeProfitRatio, "the profit target distance as a multiple of the stop distance")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("minconfidence", &cfg.MinConfidence, "the minimum confidence required to act on an entry signal")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("minriskreward", &cfg.MinRiskReward, "the minimum risk reward ratio required for an entry")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("maxpositionsize", &cfg.MaxPositionSize, "the position size cap as a fraction of capital")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("kellyscale", &cfg.KellyScale, "the kelly sizing dampener")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("pollinterval", &cfg.PollInterval, "the interval between price quote polls")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
