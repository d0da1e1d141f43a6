package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/novabot/nova/internal/config"
	"github.com/novabot/nova/internal/execution"
	"github.com/novabot/nova/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"a": 1, "b": 2}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"a"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["a"].(float64) != 1 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["b"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"ticker": "CAKE", "native": false}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "native=false ticker=CAKE") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainExecutionReport(t *testing.T) {
	report := model.NewExecutionReport("plan_1", "bsc", "", []execution.ActionResult{
		{Index: 0, Status: execution.ResultStatusSuccess, Message: "BNB balance: 1.5"},
		{Index: 1, Status: execution.ResultStatusError, Message: "Unknown action: fly"},
		{Index: 2, Status: execution.ResultStatusSuccess, Message: "Sent 1 BNB to 0xabc", ExplorerLink: "https://bscscan.com/tx/0x1"},
	})
	env := model.Envelope{Version: "v1", Success: true, Data: report}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "1. [ok] BNB balance: 1.5\n2. [error] Unknown action: fly\n3. [ok] Sent 1 BNB to 0xabc (https://bscscan.com/tx/0x1)\nplan=plan_1 succeeded=2 failed=1\n"
	if buf.String() != want {
		t.Fatalf("unexpected plain report:\n%s", buf.String())
	}
}
