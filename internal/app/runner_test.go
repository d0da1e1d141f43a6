package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/novabot/nova/internal/execution"
	"github.com/novabot/nova/internal/model"
)

type testEnvelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Error    *model.ErrorBody
	Meta     model.EnvelopeMeta `json:"meta"`
}

func decodeEnvelope(t *testing.T, raw []byte) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to parse envelope: %v output=%s", err, string(raw))
	}
	return env
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("nova plan run"); got != "plan run" {
		t.Fatalf("unexpected trim result: %s", got)
	}
}

func TestShouldOpenCache(t *testing.T) {
	if !shouldOpenCache("balance") || !shouldOpenCache("plan run") {
		t.Fatal("expected token commands to open the cache")
	}
	if shouldOpenCache("history list") || shouldOpenCache("networks show") {
		t.Fatal("did not expect metadata commands to open the cache")
	}
}

func TestRunnerNetworksList(t *testing.T) {
	isolateEnv(t)
	r := newTestRunner(t, "", nil)
	code := r.Run([]string{"networks", "list", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	var items []model.NetworkInfo
	if err := json.Unmarshal(r.stdout.Bytes(), &items); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, r.stdout.String())
	}
	if len(items) != 2 || items[0].Name != "bsc" || !items[0].Active || items[1].NativeToken != "tBNB" {
		t.Fatalf("unexpected networks %+v", items)
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	isolateEnv(t)
	r := newTestRunner(t, "", nil)
	code := r.Run([]string{"networks", "list", "--enable-commands", "history", "--results-only"})
	if code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, r.stderr.String())
	}
	env := decodeEnvelope(t, r.stderr.Bytes())
	if env.Success || env.Error == nil || env.Error.Type != "command_blocked" {
		t.Fatalf("unexpected error envelope %+v", env)
	}
}

func TestRunnerUnknownNetwork(t *testing.T) {
	isolateEnv(t)
	r := newTestRunner(t, "", nil)
	code := r.Run([]string{"balance", "BNB", "--network", "dogechain"})
	if code != 24 {
		t.Fatalf("expected exit 24, got %d stderr=%s", code, r.stderr.String())
	}
}

func TestRunnerBalanceReadsWithoutSigner(t *testing.T) {
	isolateEnv(t)
	mainnet := newChainBackend(56)
	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: mainnet})
	code := r.Run([]string{"balance", "usdt", "--address", testPeer})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	env := decodeEnvelope(t, r.stdout.Bytes())
	var result execution.ActionResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Message != "USDT balance: 12.34" {
		t.Fatalf("unexpected balance message %q", result.Message)
	}
	if env.Meta.Network != "bsc" {
		t.Fatalf("expected network in meta, got %+v", env.Meta)
	}
}

func TestRunnerBalanceSelfNeedsAccount(t *testing.T) {
	isolateEnv(t)
	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: newChainBackend(56)})
	if code := r.Run([]string{"balance", "BNB", "--address", "self"}); code != 21 {
		t.Fatalf("expected exit 21 without an account, got %d stderr=%s", code, r.stderr.String())
	}

	t.Setenv("NOVA_PRIVATE_KEY", testPrivateKey)
	r = newTestRunner(t, "", map[string]*chainBackend{bscRPC: newChainBackend(56)})
	if code := r.Run([]string{"balance", "BNB", "--address", "SELF", "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	var result execution.ActionResult
	if err := json.Unmarshal(r.stdout.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Message != "BNB balance: 2" {
		t.Fatalf("unexpected balance message %q", result.Message)
	}
}

func TestRunnerSendRequiresSigner(t *testing.T) {
	isolateEnv(t)
	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: newChainBackend(56)})
	code := r.Run([]string{"send", "--to", testPeer, "--amount", "0.1"})
	if code != 26 {
		t.Fatalf("expected exit 26, got %d stderr=%s", code, r.stderr.String())
	}
}

func TestRunnerSendDryRunDoesNotBroadcast(t *testing.T) {
	isolateEnv(t)
	mainnet := newChainBackend(56)
	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: mainnet})
	code := r.Run([]string{"send", "--to", testPeer, "--amount", "0.1", "--dry-run", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	var preview model.PlanPreview
	if err := json.Unmarshal(r.stdout.Bytes(), &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(preview.Actions) != 1 || preview.Actions[0].Description != "Send 0.1 BNB to "+testPeer {
		t.Fatalf("unexpected preview %+v", preview)
	}
	steps := preview.Actions[0].Steps
	if len(steps) != 1 || steps[0].Type != "native_transfer" || steps[0].Value != "0.1" || steps[0].Gas != 21_000 {
		t.Fatalf("unexpected preview steps %+v", steps)
	}
	if steps[0].GasPrice != "2000000000" {
		t.Fatalf("expected the policy multiplier applied to the suggested gas price, got %s", steps[0].GasPrice)
	}
	if mainnet.sentCount() != 0 {
		t.Fatal("dry run must not broadcast")
	}
}

func TestRunnerSwapDryRunListsApprovalThenSwap(t *testing.T) {
	isolateEnv(t)
	mainnet := newChainBackend(56)
	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: mainnet})
	code := r.Run([]string{"swap", "--from", "USDT", "--to", "BNB", "--amount", "5", "--dry-run", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	var preview model.PlanPreview
	if err := json.Unmarshal(r.stdout.Bytes(), &preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(preview.Actions) != 1 {
		t.Fatalf("unexpected preview %+v", preview)
	}
	steps := preview.Actions[0].Steps
	if len(steps) != 2 || steps[0].Type != "approval" || steps[1].Type != "swap" {
		t.Fatalf("expected [approval, swap], got %+v", steps)
	}
	if !strings.EqualFold(steps[0].To, bscUSDT.Hex()) || steps[1].Value != "0" || steps[1].Data == "" {
		t.Fatalf("unexpected swap steps %+v", steps)
	}
	if mainnet.sentCount() != 0 {
		t.Fatal("dry run must not broadcast")
	}
}

func TestRunnerPlanRunThenHistory(t *testing.T) {
	isolateEnv(t)
	t.Setenv("NOVA_PRIVATE_KEY", testPrivateKey)
	metricsPath := filepath.Join(t.TempDir(), "nova.prom")
	t.Setenv("NOVA_METRICS_TEXTFILE", metricsPath)
	mainnet := newChainBackend(56)
	planPath := filepath.Join(t.TempDir(), "plan.json")
	plan := `[
  {"function":"send_native_token","params":{"to_address":"` + testPeer + `","amount":"0.5"}},
  {"function":"get_token_balance","params":{"token_ticker":"USDT","address":"self"}},
  {"function":"launch_rocket","params":{}},
  {"function":"send_native_token","params":{"to_address":"` + testPeer + `","amount":"0.25"}}
]`
	if err := os.WriteFile(planPath, []byte(plan), 0o600); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: mainnet})
	code := r.Run([]string{"plan", "run", "--file", planPath})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	env := decodeEnvelope(t, r.stdout.Bytes())
	if !env.Meta.Partial || len(env.Warnings) != 1 {
		t.Fatalf("expected partial run with a warning, got %+v", env)
	}
	var report model.ExecutionReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Succeeded != 3 || report.Failed != 1 || len(report.Results) != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Results[2].Message != "Unknown action: launch_rocket" {
		t.Fatalf("unexpected invalid action message %q", report.Results[2].Message)
	}
	if !strings.HasPrefix(report.Results[0].ExplorerLink, "https://bscscan.com/tx/0x") {
		t.Fatalf("expected explorer link, got %q", report.Results[0].ExplorerLink)
	}
	if mainnet.sentCount() != 2 {
		t.Fatalf("expected two broadcasts, got %d", mainnet.sentCount())
	}
	if mainnet.sent[0].Nonce() != 0 || mainnet.sent[1].Nonce() != 1 {
		t.Fatalf("expected sequential nonces, got %d and %d", mainnet.sent[0].Nonce(), mainnet.sent[1].Nonce())
	}

	metricsText, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(metricsText), `nova_transactions_submitted_total{network="bsc",type="native_transfer"} 2`) {
		t.Fatalf("unexpected metrics textfile:\n%s", metricsText)
	}

	history := newTestRunner(t, "", nil)
	code = history.Run([]string{"history", "get", report.PlanID, "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, history.stderr.String())
	}
	var record execution.PlanRecord
	if err := json.Unmarshal(history.stdout.Bytes(), &record); err != nil {
		t.Fatalf("decode plan record: %v", err)
	}
	if record.Status != execution.PlanStatusPartial || len(record.Entries) != 4 || record.Network != "bsc" {
		t.Fatalf("unexpected plan record %+v", record)
	}
}

func TestRunnerChatAutoExecutesBalanceOnlyPlans(t *testing.T) {
	isolateEnv(t)
	t.Setenv("NOVA_PRIVATE_KEY", testPrivateKey)
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"[{\"function\":\"get_token_balance\",\"params\":{\"token_ticker\":\"BNB\",\"address\":\"self\"}}]","done":true}`))
	}))
	defer ollama.Close()
	t.Setenv("NOVA_OLLAMA_ENDPOINT", ollama.URL)

	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: newChainBackend(56)})
	code := r.Run([]string{"chat", "what", "is", "my", "balance", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	var reply model.ChatReply
	if err := json.Unmarshal(r.stdout.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if !reply.Executed || reply.Report == nil || reply.Report.Results[0].Message != "BNB balance: 2" {
		t.Fatalf("unexpected chat reply %+v", reply)
	}
	if reply.Prompt != "what is my balance" {
		t.Fatalf("unexpected prompt %q", reply.Prompt)
	}
}

func TestRunnerChatPreviewsTransfersWithoutExecute(t *testing.T) {
	isolateEnv(t)
	t.Setenv("NOVA_PRIVATE_KEY", testPrivateKey)
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"[{\"function\":\"send_native_token\",\"params\":{\"to_address\":\"` + testPeer + `\",\"amount\":\"1\"}}]","done":true}`))
	}))
	defer ollama.Close()
	t.Setenv("NOVA_OLLAMA_ENDPOINT", ollama.URL)

	mainnet := newChainBackend(56)
	r := newTestRunner(t, "", map[string]*chainBackend{bscRPC: mainnet})
	code := r.Run([]string{"chat", "send 1 BNB to the burn address", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	var reply model.ChatReply
	if err := json.Unmarshal(r.stdout.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Executed || reply.Plan.AutoExecutable || len(reply.Plan.Actions) != 1 {
		t.Fatalf("expected a preview only, got %+v", reply)
	}
	if mainnet.sentCount() != 0 {
		t.Fatal("preview must not broadcast")
	}
}

func TestRunnerShellSwitchesNetworkKeepingAccount(t *testing.T) {
	isolateEnv(t)
	t.Setenv("NOVA_PRIVATE_KEY", testPrivateKey)
	mainnet := newChainBackend(56)
	testnet := newChainBackend(97)
	input := strings.Join([]string{
		"/balance BNB self",
		"/network bsctest",
		"/balance tBNB",
		"/network dogechain",
		"/quit",
	}, "\n")
	r := newTestRunner(t, input, map[string]*chainBackend{bscRPC: mainnet, bsctestRPC: testnet})
	code := r.Run([]string{"shell"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	output := r.stdout.String()
	for _, want := range []string{
		"> BNB balance: 2",
		"Switched to bsctest (chain 97, native tBNB).",
		"tBNB balance: 2",
		`unknown network "dogechain"`,
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in shell output:\n%s", want, output)
		}
	}
	if !mainnet.closed {
		t.Fatal("expected the previous backend to be closed")
	}
}

func TestRunnerShellQueuesAndExecutes(t *testing.T) {
	isolateEnv(t)
	t.Setenv("NOVA_PRIVATE_KEY", testPrivateKey)
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"[{\"function\":\"send_native_token\",\"params\":{\"to_address\":\"` + testPeer + `\",\"amount\":\"0.1\"}}]","done":true}`))
	}))
	defer ollama.Close()
	t.Setenv("NOVA_OLLAMA_ENDPOINT", ollama.URL)

	mainnet := newChainBackend(56)
	input := "send a tip\n/plan\n/execute\n/execute\n/quit\n"
	r := newTestRunner(t, input, map[string]*chainBackend{bscRPC: mainnet})
	if code := r.Run([]string{"shell"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	output := r.stdout.String()
	if !strings.Contains(output, "1. Send 0.1 BNB to "+testPeer) {
		t.Fatalf("expected plan summary:\n%s", output)
	}
	if !strings.Contains(output, "1. [ok] Sent 0.1 BNB to "+testPeer) {
		t.Fatalf("expected execution result:\n%s", output)
	}
	if !strings.Contains(output, "No actions planned.") {
		t.Fatalf("expected the queue to be cleared after execution:\n%s", output)
	}
	if mainnet.sentCount() != 1 {
		t.Fatalf("expected one broadcast, got %d", mainnet.sentCount())
	}
}

func TestRunnerSchemaMarksSigningCommands(t *testing.T) {
	isolateEnv(t)
	r := newTestRunner(t, "", nil)
	if code := r.Run([]string{"schema", "plan", "run", "--results-only"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, r.stderr.String())
	}
	var out struct {
		Path  string `json:"path"`
		Signs bool   `json:"signs_transactions"`
	}
	if err := json.Unmarshal(r.stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if out.Path != "nova plan run" || !out.Signs {
		t.Fatalf("unexpected schema %+v", out)
	}
}
