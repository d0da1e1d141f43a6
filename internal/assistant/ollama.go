// Package assistant asks a local Ollama model to translate a chat message
// into function calls for the action queue.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/httpx"
	"github.com/novabot/nova/internal/logger"
	"github.com/novabot/nova/internal/registry"
)

const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "llama3.2"
)

type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	Retries  int
}

// Client talks to the Ollama generate API.
type Client struct {
	http     *httpx.Client
	endpoint string
	model    string
	last     string
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func New(cfg Config) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{http: httpx.New(timeout, cfg.Retries), endpoint: endpoint, model: model}
}

func (c *Client) Model() string { return c.model }

// Generate sends prompt with a system prompt built from reg and returns the
// raw model response.
func (c *Client) Generate(ctx context.Context, reg *registry.Registry, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", clierr.New(clierr.CodeUsage, "prompt is required")
	}
	req := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: SystemPrompt(reg),
		Stream: false,
	}
	var resp generateResponse
	logger.Debug("sending prompt to %s (%s)", c.endpoint, c.model)
	if err := httpx.PostJSON(ctx, c.http, c.endpoint+"/api/generate", req, &resp); err != nil {
		return "", wrap(err)
	}
	c.last = resp.Response
	return resp.Response, nil
}

// Last returns the most recent raw response.
func (c *Client) Last() string { return c.last }

func wrap(err error) error {
	if typed, ok := clierr.As(err); ok {
		return clierr.Wrap(typed.Code, "ollama request failed", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "ollama request failed", err)
}

// SystemPrompt describes the active network and the four callable functions.
func SystemPrompt(reg *registry.Registry) string {
	native := reg.NativeTicker()
	erc20 := reg.ERC20Tickers()
	example := native
	if len(erc20) > 0 {
		example = erc20[0]
	}

	var b strings.Builder
	b.WriteString("You are a crypto transaction assistant. Interpret user requests and produce function calls for a transaction queue.\n\n")
	fmt.Fprintf(&b, "Current network: %s\n", strings.ToUpper(reg.Network()))
	fmt.Fprintf(&b, "Native token: %s\n", native)
	fmt.Fprintf(&b, "Available tokens: %s\n\n", strings.Join(reg.Tickers(), ", "))
	b.WriteString("Available functions:\n")
	b.WriteString("1. swap_tokens(token_in_ticker: str, token_out_ticker: str, amount_in: float)\n")
	b.WriteString("2. get_token_balance(token_ticker: str, address: str)\n")
	b.WriteString("3. send_native_token(to_address: str, amount: float)\n")
	b.WriteString("4. send_erc20_token(token_ticker: str, to_address: str, amount: float)\n\n")
	fmt.Fprintf(&b, "Tokens usable with send_erc20_token: %s. The native token %s is used with get_token_balance and send_native_token. Never output a function for a token that is not listed.\n\n", strings.Join(erc20, ", "), native)
	b.WriteString("Respond with JSON only, one object per call:\n")
	b.WriteString(`{"function": "function_name", "params": {"param1": value1}}` + "\n")
	b.WriteString("When several actions are needed, respond with a JSON list of such objects.\n")
	b.WriteString(`When the user refers to their own address, use the string "self" as the address value.` + "\n\n")
	fmt.Fprintf(&b, "Example request: \"What's my %s balance?\"\n", native)
	fmt.Fprintf(&b, `Example response: [{"function": "get_token_balance", "params": {"token_ticker": "%s", "address": "self"}}]`+"\n", native)
	fmt.Fprintf(&b, "Example request: \"Swap 0.1 %s for %s\"\n", native, example)
	fmt.Fprintf(&b, `Example response: [{"function": "swap_tokens", "params": {"token_in_ticker": "%s", "token_out_ticker": "%s", "amount_in": 0.1}}]`+"\n\n", native, example)
	b.WriteString("Use the exact function and parameter names. Do not add explanations outside the JSON.")
	return b.String()
}
