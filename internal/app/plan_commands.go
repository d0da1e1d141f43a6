package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/novabot/nova/internal/errors"
	"github.com/novabot/nova/internal/execution"
	"github.com/novabot/nova/internal/intent"
)

type planInput struct {
	file  string
	input string
}

func (s *runtimeState) newPlanCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "plan",
		Short: "Decode and run JSON function-call plans",
	}

	var describeIn planInput
	describe := &cobra.Command{
		Use:     "describe",
		Short:   "Decode a plan and describe each action without executing it",
		Example: `nova plan describe --input '[{"function":"get_token_balance","params":{"token_ticker":"BNB"}}]'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := s.readPlan(describeIn)
			if err != nil {
				return err
			}
			session, err := s.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			return s.previewNow(cmd, intent.Decode(raw, accountString(session)))
		},
	}
	bindPlanInput(describe, &describeIn)
	root.AddCommand(describe)

	var runIn planInput
	run := &cobra.Command{
		Use:     "run",
		Short:   "Decode a plan and execute its actions in order",
		Example: "nova plan run --file plan.json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := s.readPlan(runIn)
			if err != nil {
				return err
			}
			session, err := s.ensureSession(cmd.Context())
			if err != nil {
				return err
			}
			actions := intent.Decode(raw, accountString(session))
			if len(actions) == 0 {
				return clierr.New(clierr.CodeUsage, "plan contains no actions")
			}
			return s.executeNow(cmd, actions)
		},
	}
	bindPlanInput(run, &runIn)
	root.AddCommand(run)

	return root
}

func bindPlanInput(cmd *cobra.Command, in *planInput) {
	cmd.Flags().StringVar(&in.file, "file", "", "Read the plan from a file ('-' for stdin)")
	cmd.Flags().StringVar(&in.input, "input", "", "Plan JSON passed inline")
}

func (s *runtimeState) readPlan(in planInput) (string, error) {
	switch {
	case in.file != "" && in.input != "":
		return "", clierr.New(clierr.CodeUsage, "use only one of --file or --input")
	case in.input != "":
		return in.input, nil
	case in.file == "-":
		raw, err := io.ReadAll(s.runner.stdin)
		if err != nil {
			return "", clierr.Wrap(clierr.CodeUsage, "read plan from stdin", err)
		}
		return string(raw), nil
	case in.file != "":
		raw, err := os.ReadFile(in.file)
		if err != nil {
			return "", clierr.Wrap(clierr.CodeUsage, "read plan file", err)
		}
		return string(raw), nil
	default:
		return "", clierr.New(clierr.CodeUsage, "--file or --input is required")
	}
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "history",
		Short: "Inspect journaled plan executions",
	}

	var status, network string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !validPlanStatus(status) {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown status %q", status))
			}
			store, err := s.ensureStore()
			if err != nil {
				return err
			}
			plans, err := store.List(strings.ToLower(status), network, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list plans", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plans, nil, false)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (running|completed|partial|failed)")
	list.Flags().StringVar(&network, "plan-network", "", "Filter by network")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum plans to return")
	root.AddCommand(list)

	get := &cobra.Command{
		Use:   "get <plan-id>",
		Short: "Show one plan with its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.ensureStore()
			if err != nil {
				return err
			}
			plan, err := store.Get(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			s.lastNetwork = plan.Network
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plan, nil, plan.Status == execution.PlanStatusPartial)
		},
	}
	root.AddCommand(get)
	return root
}

func validPlanStatus(status string) bool {
	switch execution.PlanStatus(strings.ToLower(status)) {
	case execution.PlanStatusRunning, execution.PlanStatusCompleted, execution.PlanStatusPartial, execution.PlanStatusFailed:
		return true
	default:
		return false
	}
}
