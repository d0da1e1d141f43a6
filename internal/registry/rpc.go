package registry

import (
	"fmt"
	"strings"

	clierr "github.com/novabot/nova/internal/errors"
)

// ResolveRPCURL prefers an explicit override (--rpc-url, NOVA_RPC_URL) over
// the endpoint configured for the network.
func ResolveRPCURL(override string, cfg ChainConfig) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value := strings.TrimSpace(cfg.RPCURL); value != "" {
		return value, nil
	}
	return "", clierr.New(clierr.CodeChainConfigInvalid, fmt.Sprintf("no rpc configured for network %q; provide --rpc-url", cfg.Network))
}
