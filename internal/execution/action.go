package execution

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ActionKind string

const (
	KindSwapTokens      ActionKind = "swap_tokens"
	KindGetTokenBalance ActionKind = "get_token_balance"
	KindSendNative      ActionKind = "send_native_token"
	KindSendERC20       ActionKind = "send_erc20_token"
	KindInvalid         ActionKind = "invalid"
)

// Action is the closed set of queueable operations. Amounts are human units.
type Action interface {
	Kind() ActionKind
	action()
}

type SwapTokens struct {
	TokenIn  string
	TokenOut string
	AmountIn decimal.Decimal
}

type GetTokenBalance struct {
	Ticker  string
	Address string
}

type SendNative struct {
	To     string
	Amount decimal.Decimal
}

type SendERC20 struct {
	Ticker string
	To     string
	Amount decimal.Decimal
}

// InvalidAction stands in for an inbound entry that named an unknown
// function or carried unusable params. Executing it yields an error result.
type InvalidAction struct {
	Function string
	Reason   string
}

func (SwapTokens) Kind() ActionKind      { return KindSwapTokens }
func (GetTokenBalance) Kind() ActionKind { return KindGetTokenBalance }
func (SendNative) Kind() ActionKind      { return KindSendNative }
func (SendERC20) Kind() ActionKind       { return KindSendERC20 }
func (InvalidAction) Kind() ActionKind   { return KindInvalid }

func (SwapTokens) action()      {}
func (GetTokenBalance) action() {}
func (SendNative) action()      {}
func (SendERC20) action()       {}
func (InvalidAction) action()   {}

func (a InvalidAction) message() string {
	if strings.TrimSpace(a.Reason) == "" {
		return fmt.Sprintf("Unknown action: %s", a.Function)
	}
	return fmt.Sprintf("Invalid action %s: %s", a.Function, a.Reason)
}

// Describe renders the one-line plan text shown before execution.
func Describe(a Action, nativeTicker string) string {
	switch v := a.(type) {
	case SwapTokens:
		return fmt.Sprintf("Swap %s %s for %s", v.AmountIn.String(), v.TokenIn, v.TokenOut)
	case GetTokenBalance:
		return fmt.Sprintf("Check balance of %s", v.Ticker)
	case SendNative:
		return fmt.Sprintf("Send %s %s to %s", v.Amount.String(), nativeTicker, v.To)
	case SendERC20:
		return fmt.Sprintf("Send %s %s to %s", v.Amount.String(), v.Ticker, v.To)
	case InvalidAction:
		return v.message()
	default:
		return "Unknown action"
	}
}

// AutoExecutable reports whether a plan only reads state and can run
// without confirmation.
func AutoExecutable(actions []Action) bool {
	if len(actions) == 0 {
		return false
	}
	for _, a := range actions {
		if _, ok := a.(GetTokenBalance); !ok {
			return false
		}
	}
	return true
}

func NewPlanID() string {
	return "plan_" + uuid.NewString()
}
