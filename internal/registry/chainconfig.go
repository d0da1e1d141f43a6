package registry

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	clierr "github.com/novabot/nova/internal/errors"
)

//go:embed networks/*.yaml
var builtinNetworks embed.FS

// TokenConfig is one ticker/address pair of a network document.
type TokenConfig struct {
	Ticker  string `yaml:"ticker" json:"ticker"`
	Address string `yaml:"address" json:"address"`
}

// ChainConfig describes one network: where to reach it and which tokens it knows.
// The native token address is the wrapped native contract used in swap paths.
type ChainConfig struct {
	Network         string        `yaml:"-" json:"network"`
	RPCURL          string        `yaml:"rpc_url" json:"rpc_url"`
	ExplorerURL     string        `yaml:"explorer_url" json:"explorer_url"`
	ExchangeAddress string        `yaml:"exchange_address" json:"exchange_address"`
	NativeToken     TokenConfig   `yaml:"native_token" json:"native_token"`
	Tokens          []TokenConfig `yaml:"tokens" json:"tokens"`
}

// ExplorerLink joins the configured explorer prefix and a transaction hash.
func (c ChainConfig) ExplorerLink(txHash string) string {
	return c.ExplorerURL + txHash
}

func (c ChainConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.RPCURL) == "" {
		problems = append(problems, "rpc_url is required")
	}
	if strings.TrimSpace(c.ExplorerURL) == "" {
		problems = append(problems, "explorer_url is required")
	}
	if !common.IsHexAddress(c.ExchangeAddress) {
		problems = append(problems, "exchange_address must be a hex address")
	}
	if strings.TrimSpace(c.NativeToken.Ticker) == "" {
		problems = append(problems, "native_token.ticker is required")
	}
	if !common.IsHexAddress(c.NativeToken.Address) {
		problems = append(problems, "native_token.address must be a hex address")
	}
	for i, token := range c.Tokens {
		if strings.TrimSpace(token.Ticker) == "" {
			problems = append(problems, fmt.Sprintf("tokens[%d].ticker is required", i))
		}
		if !common.IsHexAddress(token.Address) {
			problems = append(problems, fmt.Sprintf("tokens[%d].address must be a hex address", i))
		}
	}
	if len(problems) > 0 {
		return clierr.New(clierr.CodeChainConfigInvalid, fmt.Sprintf("invalid chain config %q: %s", c.Network, strings.Join(problems, "; ")))
	}
	return nil
}

// ParseChainConfig decodes a YAML or JSON network document and validates it.
func ParseChainConfig(network string, raw []byte) (ChainConfig, error) {
	var cfg ChainConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ChainConfig{}, clierr.Wrap(clierr.CodeChainConfigInvalid, fmt.Sprintf("parse chain config %q", network), err)
	}
	cfg.Network = network
	if err := cfg.Validate(); err != nil {
		return ChainConfig{}, err
	}
	return cfg, nil
}

// LoadChainConfig reads the document for network from dir, falling back to
// the built-in documents. An empty dir only consults the built-ins.
func LoadChainConfig(dir, network string) (ChainConfig, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "" {
		return ChainConfig{}, clierr.New(clierr.CodeChainConfigInvalid, "network name is required")
	}
	if dir != "" {
		for _, name := range candidateFiles(network) {
			raw, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				return ParseChainConfig(network, raw)
			}
			if !os.IsNotExist(err) {
				return ChainConfig{}, clierr.Wrap(clierr.CodeChainConfigInvalid, fmt.Sprintf("read chain config %q", network), err)
			}
		}
	}
	raw, err := builtinNetworks.ReadFile("networks/" + network + ".yaml")
	if err != nil {
		return ChainConfig{}, clierr.New(clierr.CodeChainConfigInvalid, fmt.Sprintf("unknown network %q", network))
	}
	return ParseChainConfig(network, raw)
}

// Networks lists the network names available from dir and the built-ins.
func Networks(dir string) ([]string, error) {
	seen := map[string]struct{}{}
	entries, err := builtinNetworks.ReadDir("networks")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		seen[strings.TrimSuffix(entry.Name(), ".yaml")] = struct{}{}
	}
	if dir != "" {
		local, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, clierr.Wrap(clierr.CodeChainConfigInvalid, "list chain configs", err)
		}
		for _, entry := range local {
			if entry.IsDir() {
				continue
			}
			if name, ok := networkFromFile(entry.Name()); ok {
				seen[name] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func candidateFiles(network string) []string {
	return []string{
		network + ".yaml",
		network + ".yml",
		network + ".json",
		"config_" + network + ".json",
	}
}

func networkFromFile(name string) (string, bool) {
	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return "", false
	}
	base := strings.TrimSuffix(lower, ext)
	if ext == ".json" {
		base = strings.TrimPrefix(base, "config_")
	}
	if base == "" {
		return "", false
	}
	return base, true
}
