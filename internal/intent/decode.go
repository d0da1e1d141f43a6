// Package intent turns the assistant's JSON function calls into typed
// execution actions.
package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/execution"
)

// SelfAddress is the placeholder the assistant uses for the user's own account.
const SelfAddress = "self"

// Call is one inbound function call.
type Call struct {
	Function string          `json:"function"`
	Params   json.RawMessage `json:"params,omitempty"`
}

type swapParams struct {
	TokenIn  string          `json:"token_in_ticker"`
	TokenOut string          `json:"token_out_ticker"`
	AmountIn decimal.Decimal `json:"amount_in"`
}

type balanceParams struct {
	Ticker  string `json:"token_ticker"`
	Address string `json:"address"`
}

type sendNativeParams struct {
	To     string          `json:"to_address"`
	Amount decimal.Decimal `json:"amount"`
}

type sendERC20Params struct {
	Ticker string          `json:"token_ticker"`
	To     string          `json:"to_address"`
	Amount decimal.Decimal `json:"amount"`
}

// Decode parses raw (a JSON array of calls or a single call object) into
// actions. Malformed input yields an empty list. Entries without a function
// name are dropped; unknown functions and unusable params become
// InvalidAction at their index. "self" addresses are replaced by account;
// with an empty account such entries become InvalidAction.
func Decode(raw string, account string) []execution.Action {
	calls, ok := ParseCalls(raw)
	if !ok {
		return []execution.Action{}
	}
	actions := make([]execution.Action, 0, len(calls))
	for _, call := range calls {
		actions = append(actions, decodeCall(call, account))
	}
	return actions
}

// ParseCalls extracts the calls from raw, dropping entries without a function
// name. It reports false when raw is not a JSON object or array.
func ParseCalls(raw string) ([]Call, bool) {
	body := bytes.TrimSpace([]byte(stripFence(raw)))
	if len(body) == 0 {
		return nil, false
	}

	var entries []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, false
		}
	case '{':
		if !json.Valid(body) {
			return nil, false
		}
		entries = []json.RawMessage{body}
	default:
		return nil, false
	}

	calls := make([]Call, 0, len(entries))
	for _, entry := range entries {
		var call Call
		if err := json.Unmarshal(entry, &call); err != nil {
			continue
		}
		call.Function = strings.TrimSpace(call.Function)
		if call.Function == "" {
			continue
		}
		calls = append(calls, call)
	}
	return calls, true
}

func decodeCall(call Call, account string) execution.Action {
	invalid := func(format string, args ...any) execution.Action {
		return execution.InvalidAction{Function: call.Function, Reason: fmt.Sprintf(format, args...)}
	}
	params := call.Params
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}

	switch execution.ActionKind(call.Function) {
	case execution.KindSwapTokens:
		var p swapParams
		if err := json.Unmarshal(params, &p); err != nil {
			return invalid("bad params: %v", err)
		}
		if strings.TrimSpace(p.TokenIn) == "" || strings.TrimSpace(p.TokenOut) == "" {
			return invalid("token_in_ticker and token_out_ticker are required")
		}
		if !p.AmountIn.IsPositive() {
			return invalid("amount_in must be positive")
		}
		return execution.SwapTokens{TokenIn: strings.TrimSpace(p.TokenIn), TokenOut: strings.TrimSpace(p.TokenOut), AmountIn: p.AmountIn}

	case execution.KindGetTokenBalance:
		var p balanceParams
		if err := json.Unmarshal(params, &p); err != nil {
			return invalid("bad params: %v", err)
		}
		if strings.TrimSpace(p.Ticker) == "" {
			return invalid("token_ticker is required")
		}
		address, err := ResolveAddress(p.Address, account)
		if err != nil {
			return invalid("%v", err)
		}
		return execution.GetTokenBalance{Ticker: strings.TrimSpace(p.Ticker), Address: address}

	case execution.KindSendNative:
		var p sendNativeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return invalid("bad params: %v", err)
		}
		to, err := ResolveAddress(p.To, account)
		if err != nil {
			return invalid("%v", err)
		}
		if to == "" {
			return invalid("to_address is required")
		}
		if !p.Amount.IsPositive() {
			return invalid("amount must be positive")
		}
		return execution.SendNative{To: to, Amount: p.Amount}

	case execution.KindSendERC20:
		var p sendERC20Params
		if err := json.Unmarshal(params, &p); err != nil {
			return invalid("bad params: %v", err)
		}
		if strings.TrimSpace(p.Ticker) == "" {
			return invalid("token_ticker is required")
		}
		to, err := ResolveAddress(p.To, account)
		if err != nil {
			return invalid("%v", err)
		}
		if to == "" {
			return invalid("to_address is required")
		}
		if !p.Amount.IsPositive() {
			return invalid("amount must be positive")
		}
		return execution.SendERC20{Ticker: strings.TrimSpace(p.Ticker), To: to, Amount: p.Amount}
	}
	return execution.InvalidAction{Function: call.Function}
}

// ResolveAddress replaces the "self" placeholder with account. Other values
// are returned trimmed.
func ResolveAddress(value, account string) (string, error) {
	v := strings.TrimSpace(value)
	if !strings.EqualFold(v, SelfAddress) {
		return v, nil
	}
	if account == "" {
		return "", errNoAccount
	}
	return account, nil
}

var errNoAccount = clierr.New(clierr.CodeNotInitialized, fmt.Sprintf("address %q requires an initialized account", SelfAddress))

// stripFence unwraps a markdown code fence around the payload.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
