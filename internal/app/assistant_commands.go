package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/novabot/nova/internal/assistant"
	"github.com/novabot/nova/internal/execution"
	"github.com/novabot/nova/internal/intent"
	"github.com/novabot/nova/internal/logger"
	"github.com/novabot/nova/internal/model"
	"github.com/novabot/nova/internal/out"
	"github.com/novabot/nova/internal/registry"
)

func (s *runtimeState) newChatCommand() *cobra.Command {
	var execute bool
	cmd := &cobra.Command{
		Use:     "chat <message>",
		Short:   "Turn a natural-language request into a plan and optionally run it",
		Example: `nova chat "send 0.01 BNB to 0x..." --execute`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prompt := strings.Join(args, " ")
			session, err := s.ensureSession(ctx)
			if err != nil {
				return err
			}
			client := s.newAssistant()
			raw, err := client.Generate(ctx, session.Registry(), prompt)
			if err != nil {
				return err
			}
			actions := intent.Decode(raw, accountString(session))
			reply := model.ChatReply{
				Prompt: prompt,
				Model:  client.Model(),
				Raw:    raw,
				Plan:   model.NewPlanPreview(session.Network(), session.Registry().NativeTicker(), actions),
			}
			if len(actions) == 0 || !(execute || reply.Plan.AutoExecutable) {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), reply, nil, false)
			}

			executor, err := s.newExecutor(session)
			if err != nil {
				return err
			}
			report, err := s.runActions(ctx, session, executor, actions)
			if err != nil {
				return err
			}
			reply.Executed = true
			reply.Report = &report
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), reply, reportWarnings(report), report.Partial())
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "Run the plan without confirmation")
	return cmd
}

func (s *runtimeState) newShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: chat, review the queued plan, execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := s.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			executor, err := s.newExecutor(session)
			if err != nil {
				return err
			}
			sh := &shell{
				state:     s,
				session:   session,
				executor:  executor,
				assistant: s.newAssistant(),
				out:       s.runner.stdout,
			}
			return sh.loop(cmd.Context(), s.runner.stdin)
		},
	}
}

type shell struct {
	state     *runtimeState
	session   *execution.Session
	executor  *execution.ActionExecutor
	assistant *assistant.Client
	out       io.Writer
}

const shellHelp = `Commands:
  /network <name>   switch network, keeping the account
  /networks         list available networks
  /balance <ticker> [address|self]
  /plan             show queued actions
  /execute          run queued actions
  /clear            drop queued actions
  /help             show this help
  /quit             leave the shell
Anything else is sent to the assistant.`

func (sh *shell) loop(ctx context.Context, in io.Reader) error {
	sh.printf("%s on %s (%s). Type /help for commands.\n", accountOrNone(sh.session), sh.session.Network(), sh.session.Registry().NativeTicker())
	scanner := bufio.NewScanner(in)
	for {
		sh.printf("> ")
		if !scanner.Scan() {
			sh.printf("\n")
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			sh.chat(ctx, line)
			continue
		}
		fields := strings.Fields(line)
		switch strings.ToLower(fields[0]) {
		case "/quit", "/exit":
			return nil
		case "/help":
			sh.printf("%s\n", shellHelp)
		case "/networks":
			names, err := registry.Networks(sh.state.settings.ChainsDir)
			if err != nil {
				sh.printf("Error: %v\n", err)
				continue
			}
			sh.printf("%s\n", strings.Join(names, ", "))
		case "/network":
			if len(fields) != 2 {
				sh.printf("Usage: /network <name>\n")
				continue
			}
			sh.switchNetwork(ctx, fields[1])
		case "/balance":
			if len(fields) < 2 || len(fields) > 3 {
				sh.printf("Usage: /balance <ticker> [address]\n")
				continue
			}
			address := ""
			if len(fields) == 3 {
				resolved, err := intent.ResolveAddress(fields[2], accountString(sh.session))
				if err != nil {
					sh.printf("Error: %v\n", err)
					continue
				}
				address = resolved
			}
			result := sh.session.Balance(ctx, fields[1], address)
			sh.printf("%s\n", result.Message)
		case "/plan":
			sh.printf("%s\n", intent.Summary(sh.executor.Pending(), sh.session.Registry().NativeTicker()))
		case "/clear":
			sh.executor.Load(nil)
			sh.printf("Plan cleared.\n")
		case "/execute":
			sh.execute(ctx)
		default:
			sh.printf("Unknown command %s. Type /help for commands.\n", fields[0])
		}
	}
}

func (sh *shell) chat(ctx context.Context, prompt string) {
	raw, err := sh.assistant.Generate(ctx, sh.session.Registry(), prompt)
	if err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	actions := intent.Decode(raw, accountString(sh.session))
	if len(actions) == 0 {
		sh.printf("The assistant did not return any actions.\n")
		logger.Debug("assistant reply without actions: %s", raw)
		return
	}
	sh.executor.Load(actions)
	sh.printf("%s\n", intent.Summary(actions, sh.session.Registry().NativeTicker()))
	if execution.AutoExecutable(actions) {
		sh.execute(ctx)
		return
	}
	sh.printf("Type /execute to run, /clear to discard.\n")
}

func (sh *shell) execute(ctx context.Context) {
	if len(sh.executor.Pending()) == 0 {
		sh.printf("No actions planned.\n")
		return
	}
	results, err := sh.executor.Execute(ctx)
	if err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	for _, result := range results {
		sh.printf("%s\n", out.ResultLine(result.Index, result.OK(), result.Message, result.ExplorerLink))
	}
	if id := sh.executor.LastPlanID(); id != "" {
		sh.printf("Recorded as %s\n", id)
	}
}

func (sh *shell) switchNetwork(ctx context.Context, name string) {
	cfg, err := registry.LoadChainConfig(sh.state.settings.ChainsDir, name)
	if err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	dialCtx, cancel := context.WithTimeout(ctx, sh.state.settings.Timeout)
	defer cancel()
	if err := sh.session.SwitchChain(dialCtx, cfg, ""); err != nil {
		sh.printf("Error: %v\n", err)
		return
	}
	sh.executor.Load(nil)
	sh.state.lastNetwork = sh.session.Network()
	sh.printf("Switched to %s (chain %s, native %s).\n", sh.session.Network(), sh.session.ChainID(), sh.session.Registry().NativeTicker())
}

func (sh *shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(sh.out, format, args...)
}

func accountOrNone(session *execution.Session) string {
	if account := accountString(session); account != "" {
		return account
	}
	return "No account"
}
