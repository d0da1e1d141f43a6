package app

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/execution"
	"github.com/novabot/nova/internal/intent"
	"github.com/novabot/nova/internal/model"
	"github.com/novabot/nova/internal/registry"
	"github.com/novabot/nova/internal/units"
)

func (s *runtimeState) newNetworksCommand() *cobra.Command {
	root := &cobra.Command{Use: "networks", Short: "Inspect configured networks"}

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in and local networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := registry.Networks(s.settings.ChainsDir)
			if err != nil {
				return err
			}
			items := make([]model.NetworkInfo, 0, len(names))
			var warnings []string
			for _, name := range names {
				cfg, err := registry.LoadChainConfig(s.settings.ChainsDir, name)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
					continue
				}
				items = append(items, networkInfo(cfg, name == s.settings.Network))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, warnings, len(warnings) > 0)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:     "show [network]",
		Short:   "Show one network with its token registry",
		Example: "nova networks show bsctest",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := s.settings.Network
			if len(args) == 1 {
				name = strings.ToLower(strings.TrimSpace(args[0]))
			}
			cfg, err := registry.LoadChainConfig(s.settings.ChainsDir, name)
			if err != nil {
				return err
			}
			if _, err := registry.New(cfg); err != nil {
				return err
			}
			s.lastNetwork = cfg.Network
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), networkInfo(cfg, name == s.settings.Network), nil, false)
		},
	})
	return root
}

func (s *runtimeState) newAccountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the signing account and bound network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := s.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			addr, err := session.Address()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.AccountInfo{
				Address:     addr.Hex(),
				Network:     session.Network(),
				ChainID:     session.ChainID().String(),
				NativeToken: session.Registry().NativeTicker(),
			}, nil, false)
		},
	}
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:     "balance <ticker>",
		Short:   "Read a native or ERC-20 balance",
		Example: "nova balance USDT --address 0x...",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := s.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := session.Registry().Lookup(args[0]); err != nil {
				return err
			}
			holder, err := intent.ResolveAddress(address, accountString(session))
			if err != nil {
				return err
			}
			result := session.Balance(cmd.Context(), args[0], holder)
			if !result.OK() {
				return clierr.New(clierr.CodeChainRPC, result.Message)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil, false)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Holder address or \"self\" (defaults to the signing account)")
	return cmd
}

func (s *runtimeState) newSendCommand() *cobra.Command {
	var ticker, to, amount string
	cmd := &cobra.Command{
		Use:     "send",
		Short:   "Send native currency or an ERC-20 token",
		Example: "nova send --token USDT --to 0x... --amount 12.5",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireValue("to", to); err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			session, err := s.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			var action execution.Action
			if ticker == "" || session.Registry().IsNative(ticker) {
				action = execution.SendNative{To: to, Amount: value}
			} else {
				action = execution.SendERC20{Ticker: ticker, To: to, Amount: value}
			}
			if s.dryRun {
				return s.previewNow(cmd, []execution.Action{action})
			}
			return s.executeNow(cmd, []execution.Action{action})
		},
	}
	cmd.Flags().StringVar(&ticker, "token", "", "Token ticker (defaults to the native currency)")
	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in human units")
	cmd.Flags().BoolVar(&s.dryRun, "dry-run", false, "Describe the action without signing")
	return cmd
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var from, to, amount string
	cmd := &cobra.Command{
		Use:     "swap",
		Short:   "Swap tokens through the network's exchange router",
		Example: "nova swap --from BNB --to USDT --amount 0.1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireValue("from", from); err != nil {
				return err
			}
			if err := requireValue("to", to); err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			actions := []execution.Action{execution.SwapTokens{TokenIn: from, TokenOut: to, AmountIn: value}}
			if s.dryRun {
				return s.previewNow(cmd, actions)
			}
			return s.executeNow(cmd, actions)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Ticker to sell")
	cmd.Flags().StringVar(&to, "to", "", "Ticker to buy")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount of --from in human units")
	cmd.Flags().BoolVar(&s.dryRun, "dry-run", false, "Describe the action without signing")
	return cmd
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if err := requireValue("amount", raw); err != nil {
		return decimal.Decimal{}, err
	}
	value, err := units.ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !value.IsPositive() {
		return decimal.Decimal{}, clierr.New(clierr.CodeUsage, "--amount must be positive")
	}
	return value, nil
}
