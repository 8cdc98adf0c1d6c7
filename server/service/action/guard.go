package action

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// guard is an operator-defined boolean CEL expression over an action, for
// example `action_type != "resume" || campaign_name.startsWith("test")`.
// An action passes when every guard evaluates to true.
type guard struct {
	expr    string
	program cel.Program
}

func guardEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("action_type", cel.StringType),
		cel.Variable("campaign_id", cel.StringType),
		cel.Variable("campaign_name", cel.StringType),
		cel.Variable("account_id", cel.StringType),
		cel.Variable("current_budget", cel.DoubleType),
		cel.Variable("new_budget", cel.DoubleType),
		cel.Variable("increase_percent", cel.DoubleType),
		cel.Variable("new_status", cel.StringType),
	)
}

// compileGuards compiles the expressions; each must type-check to bool.
func compileGuards(exprs []string) ([]guard, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	env, err := guardEnv()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create guard environment")
	}

	guards := make([]guard, 0, len(exprs))
	for _, expr := range exprs {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, errors.Wrapf(issues.Err(), "invalid guard %q", expr)
		}
		if ast.OutputType() != cel.BoolType {
			return nil, errors.Errorf("guard %q must evaluate to bool, got %v", expr, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build guard %q", expr)
		}
		guards = append(guards, guard{expr: expr, program: prg})
	}
	return guards, nil
}

func guardVars(a Action) map[string]any {
	return map[string]any{
		"action_type":      string(a.Type),
		"campaign_id":      a.CampaignID,
		"campaign_name":    a.CampaignName,
		"account_id":       a.AccountID,
		"current_budget":   a.Params.CurrentBudget,
		"new_budget":       a.Params.NewBudget,
		"increase_percent": a.Params.EffectiveIncreasePercent(),
		"new_status":       string(a.Params.NewStatus),
	}
}

// check returns a refusal reason, or "" when the action passes. Evaluation
// errors refuse the action.
func (g guard) check(a Action) string {
	out, _, err := g.program.Eval(guardVars(a))
	if err != nil {
		return fmt.Sprintf("ガード条件の評価に失敗しました: %s (%v)", g.expr, err)
	}
	if pass, ok := out.Value().(bool); !ok || !pass {
		return fmt.Sprintf("ガード条件を満たしていません: %s", g.expr)
	}
	return ""
}
