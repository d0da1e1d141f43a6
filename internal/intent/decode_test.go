package intent

import (
	"strings"
	"testing"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/execution"
)

const account = "0x1111111111111111111111111111111111111111"

func TestDecodeSelfBalance(t *testing.T) {
	raw := `[{"function": "get_token_balance", "params": {"token_ticker": "BNB", "address": "self"}}]`
	actions := Decode(raw, account)
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	got, ok := actions[0].(execution.GetTokenBalance)
	if !ok {
		t.Fatalf("expected GetTokenBalance, got %T", actions[0])
	}
	if got.Ticker != "BNB" || got.Address != account {
		t.Fatalf("unexpected action %+v", got)
	}
	if !execution.AutoExecutable(actions) {
		t.Fatal("a balance-only plan should be auto-executable")
	}
}

func TestDecodeSelfWithoutAccountIsInvalid(t *testing.T) {
	actions := Decode(`{"function":"send_native_token","params":{"to_address":"SELF","amount":1}}`, "")
	invalid, ok := actions[0].(execution.InvalidAction)
	if !ok {
		t.Fatalf("expected InvalidAction, got %T", actions[0])
	}
	if invalid.Function != "send_native_token" || !strings.Contains(invalid.Reason, "initialized account") {
		t.Fatalf("unexpected invalid action %+v", invalid)
	}
}

func TestResolveAddress(t *testing.T) {
	if got, err := ResolveAddress(" Self ", account); err != nil || got != account {
		t.Fatalf("expected self to resolve to the account, got %q %v", got, err)
	}
	if got, err := ResolveAddress(" 0xabc ", ""); err != nil || got != "0xabc" {
		t.Fatalf("expected other values trimmed and kept, got %q %v", got, err)
	}
	if _, err := ResolveAddress("self", ""); !clierr.Is(err, clierr.CodeNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
}

func TestDecodeMixedPlanKeepsOrder(t *testing.T) {
	raw := `[
		{"function": "swap_tokens", "params": {"token_in_ticker": "BNB", "token_out_ticker": "CAKE", "amount_in": 0.1}},
		{"function": "fly_to_moon", "params": {}},
		{"params": {"amount": 1}},
		{"function": "send_erc20_token", "params": {"token_ticker": "CAKE", "to_address": "0x000000000000000000000000000000000000dEaD", "amount": "5"}},
		{"function": "send_native_token", "params": {"to_address": "0x000000000000000000000000000000000000dEaD", "amount": 0}}
	]`
	actions := Decode(raw, account)
	if len(actions) != 4 {
		t.Fatalf("expected the function-less entry to be dropped, got %d actions", len(actions))
	}
	swap, ok := actions[0].(execution.SwapTokens)
	if !ok || swap.AmountIn.String() != "0.1" || swap.TokenOut != "CAKE" {
		t.Fatalf("unexpected swap %+v", actions[0])
	}
	if unknown, ok := actions[1].(execution.InvalidAction); !ok || unknown.Function != "fly_to_moon" || unknown.Reason != "" {
		t.Fatalf("unexpected unknown entry %+v", actions[1])
	}
	send, ok := actions[2].(execution.SendERC20)
	if !ok || send.Amount.String() != "5" || send.Ticker != "CAKE" {
		t.Fatalf("unexpected erc20 send %+v", actions[2])
	}
	if _, ok := actions[3].(execution.InvalidAction); !ok {
		t.Fatalf("zero amount should be invalid, got %+v", actions[3])
	}

	want := []string{
		"Swap 0.1 BNB for CAKE",
		"Unknown action: fly_to_moon",
		"Send 5 CAKE to 0x000000000000000000000000000000000000dEaD",
	}
	got := Descriptions(actions, "BNB")
	for i, line := range want {
		if got[i] != line {
			t.Fatalf("description %d = %q, want %q", i, got[i], line)
		}
	}
	if execution.AutoExecutable(actions) {
		t.Fatal("a plan with transfers must not be auto-executable")
	}
}

func TestDecodeMalformedIsEmpty(t *testing.T) {
	for _, raw := range []string{"", "not json", `[{"function": "swap_tokens"`, `"get_token_balance"`, "42"} {
		actions := Decode(raw, account)
		if actions == nil || len(actions) != 0 {
			t.Fatalf("expected empty non-nil list for %q, got %#v", raw, actions)
		}
	}
}

func TestDecodeBadParamsIsInvalid(t *testing.T) {
	actions := Decode(`[
		{"function": "swap_tokens", "params": {"token_in_ticker": "BNB", "token_out_ticker": "CAKE", "amount_in": "lots"}},
		{"function": "get_token_balance", "params": {"address": "self"}},
		{"function": "send_erc20_token", "params": "oops"}
	]`, account)
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	for i, action := range actions {
		invalid, ok := action.(execution.InvalidAction)
		if !ok || invalid.Reason == "" {
			t.Fatalf("action %d: expected InvalidAction with reason, got %+v", i, action)
		}
	}
}

func TestDecodeStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"function\": \"get_token_balance\", \"params\": {\"token_ticker\": \"cake\"}}\n```"
	actions := Decode(raw, account)
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if got := actions[0].(execution.GetTokenBalance); got.Ticker != "cake" || got.Address != "" {
		t.Fatalf("unexpected action %+v", got)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(nil, "BNB"); got != "No actions planned." {
		t.Fatalf("unexpected empty summary %q", got)
	}
	got := Summary(Decode(`[{"function":"get_token_balance","params":{"token_ticker":"BNB","address":"self"}}]`, account), "BNB")
	if got != "Planned actions:\n1. Check balance of BNB" {
		t.Fatalf("unexpected summary %q", got)
	}
}
