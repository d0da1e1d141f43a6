package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultNetwork = "bsc"

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	NoCache        bool
	Network        string
	ChainsDir      string
	RPCURL         string
	LogLevel       string
	LogFile        string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int

	Network   string
	ChainsDir string
	RPCURL    string

	CacheEnabled    bool
	CachePath       string
	CacheLockPath   string
	CacheTTL        time.Duration
	ActionStorePath string
	ActionLockPath  string

	LogLevel        string
	LogFile         string
	MetricsTextfile string

	AssistantEndpoint string
	AssistantModel    string
	AssistantTimeout  time.Duration

	PollInterval       time.Duration
	ReceiptTimeout     time.Duration
	GasPriceMultiplier int64
	AmountOutMin       *big.Int
	DeadlineWindow     time.Duration

	KeySource string
}

type fileConfig struct {
	Output    string `yaml:"output"`
	Timeout   string `yaml:"timeout"`
	Retries   *int   `yaml:"retries"`
	Network   string `yaml:"network"`
	ChainsDir string `yaml:"chains_dir"`
	RPCURL    string `yaml:"rpc_url"`
	Cache     struct {
		Enabled  *bool  `yaml:"enabled"`
		TTL      string `yaml:"ttl"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
	Assistant struct {
		Endpoint string `yaml:"endpoint"`
		Model    string `yaml:"model"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"assistant"`
	Execution struct {
		ActionsPath        string `yaml:"actions_path"`
		ActionsLockPath    string `yaml:"actions_lock_path"`
		PollInterval       string `yaml:"poll_interval"`
		ReceiptTimeout     string `yaml:"receipt_timeout"`
		GasPriceMultiplier *int64 `yaml:"gas_price_multiplier"`
		AmountOutMin       string `yaml:"amount_out_min"`
		DeadlineSeconds    *int64 `yaml:"deadline_seconds"`
		KeySource          string `yaml:"key_source"`
	} `yaml:"execution"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	settings.Network = strings.ToLower(strings.TrimSpace(settings.Network))
	if settings.Network == "" {
		settings.Network = DefaultNetwork
	}
	if settings.GasPriceMultiplier <= 0 {
		return Settings{}, fmt.Errorf("gas price multiplier must be positive")
	}
	if settings.AmountOutMin == nil || settings.AmountOutMin.Sign() < 0 {
		return Settings{}, fmt.Errorf("amount out min must be a non-negative integer")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:         "json",
		Timeout:            10 * time.Second,
		Retries:            2,
		Network:            DefaultNetwork,
		CacheEnabled:       true,
		CachePath:          cachePath,
		CacheLockPath:      lockPath,
		CacheTTL:           7 * 24 * time.Hour,
		ActionStorePath:    filepath.Join(cacheDir, "plans.db"),
		ActionLockPath:     filepath.Join(cacheDir, "plans.lock"),
		LogLevel:           "off",
		AssistantEndpoint:  "http://localhost:11434",
		AssistantModel:     "llama3.2",
		AssistantTimeout:   2 * time.Minute,
		PollInterval:       2 * time.Second,
		ReceiptTimeout:     2 * time.Minute,
		GasPriceMultiplier: 2,
		AmountOutMin:       big.NewInt(0),
		DeadlineWindow:     1200 * time.Second,
		KeySource:          "auto",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := strings.TrimSpace(os.Getenv("NOVA_CONFIG")); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "nova", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "nova")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(cfg.Timeout, "timeout", &settings.Timeout); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Network != "" {
		settings.Network = cfg.Network
	}
	if cfg.ChainsDir != "" {
		settings.ChainsDir = cfg.ChainsDir
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if err := setDuration(cfg.Cache.TTL, "cache.ttl", &settings.CacheTTL); err != nil {
		return err
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = strings.ToLower(cfg.Log.Level)
	}
	if cfg.Log.File != "" {
		settings.LogFile = cfg.Log.File
	}
	if cfg.Metrics.Textfile != "" {
		settings.MetricsTextfile = cfg.Metrics.Textfile
	}
	if cfg.Assistant.Endpoint != "" {
		settings.AssistantEndpoint = cfg.Assistant.Endpoint
	}
	if cfg.Assistant.Model != "" {
		settings.AssistantModel = cfg.Assistant.Model
	}
	if err := setDuration(cfg.Assistant.Timeout, "assistant.timeout", &settings.AssistantTimeout); err != nil {
		return err
	}
	if cfg.Execution.ActionsPath != "" {
		settings.ActionStorePath = cfg.Execution.ActionsPath
	}
	if cfg.Execution.ActionsLockPath != "" {
		settings.ActionLockPath = cfg.Execution.ActionsLockPath
	}
	if err := setDuration(cfg.Execution.PollInterval, "execution.poll_interval", &settings.PollInterval); err != nil {
		return err
	}
	if err := setDuration(cfg.Execution.ReceiptTimeout, "execution.receipt_timeout", &settings.ReceiptTimeout); err != nil {
		return err
	}
	if cfg.Execution.GasPriceMultiplier != nil {
		settings.GasPriceMultiplier = *cfg.Execution.GasPriceMultiplier
	}
	if cfg.Execution.AmountOutMin != "" {
		v, ok := new(big.Int).SetString(strings.TrimSpace(cfg.Execution.AmountOutMin), 10)
		if !ok {
			return fmt.Errorf("config execution.amount_out_min: %q is not an integer", cfg.Execution.AmountOutMin)
		}
		settings.AmountOutMin = v
	}
	if cfg.Execution.DeadlineSeconds != nil {
		settings.DeadlineWindow = time.Duration(*cfg.Execution.DeadlineSeconds) * time.Second
	}
	if cfg.Execution.KeySource != "" {
		settings.KeySource = strings.ToLower(cfg.Execution.KeySource)
	}

	return nil
}

func setDuration(raw, name string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	*dst = d
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("NOVA_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("NOVA_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("NOVA_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("NOVA_NETWORK"); v != "" {
		settings.Network = v
	}
	if v := os.Getenv("NOVA_CHAINS_DIR"); v != "" {
		settings.ChainsDir = v
	}
	if v := os.Getenv("NOVA_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("NOVA_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("NOVA_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("NOVA_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("NOVA_ACTIONS_PATH"); v != "" {
		settings.ActionStorePath = v
	}
	if v := os.Getenv("NOVA_ACTIONS_LOCK_PATH"); v != "" {
		settings.ActionLockPath = v
	}
	if v := os.Getenv("NOVA_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("NOVA_LOG_FILE"); v != "" {
		settings.LogFile = v
	}
	if v := os.Getenv("NOVA_METRICS_TEXTFILE"); v != "" {
		settings.MetricsTextfile = v
	}
	if v := os.Getenv("NOVA_OLLAMA_ENDPOINT"); v != "" {
		settings.AssistantEndpoint = v
	}
	if v := os.Getenv("NOVA_OLLAMA_MODEL"); v != "" {
		settings.AssistantModel = v
	}
	if v := os.Getenv("NOVA_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("NOVA_RECEIPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ReceiptTimeout = d
		}
	}
	if v := os.Getenv("NOVA_GAS_PRICE_MULTIPLIER"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.GasPriceMultiplier = n
		}
	}
	if v := os.Getenv("NOVA_AMOUNT_OUT_MIN"); v != "" {
		if n, ok := new(big.Int).SetString(v, 10); ok {
			settings.AmountOutMin = n
		}
	}
	if v := os.Getenv("NOVA_DEADLINE_SECONDS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.DeadlineWindow = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("NOVA_KEY_SOURCE"); v != "" {
		settings.KeySource = strings.ToLower(v)
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if strings.TrimSpace(flags.Network) != "" {
		settings.Network = flags.Network
	}
	if strings.TrimSpace(flags.ChainsDir) != "" {
		settings.ChainsDir = flags.ChainsDir
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = flags.RPCURL
	}
	if strings.TrimSpace(flags.LogLevel) != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if strings.TrimSpace(flags.LogFile) != "" {
		settings.LogFile = flags.LogFile
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
