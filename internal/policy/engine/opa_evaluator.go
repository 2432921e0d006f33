package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/commentors-net/Aegis-Mint/internal/policy/domain"
)

const allowQuery = "data.aegis.governance.allow"

// DefaultRegoPolicy grants governance actions to active GovernanceAuthority users and admin actions
// to active Admin users. Roles do not inherit from each other.
const DefaultRegoPolicy = `package aegis.governance

default allow := false

allow if {
	input.subject.status == "active"
	input.subject.role == "GovernanceAuthority"
	startswith(input.action, "governance.")
}

allow if {
	input.subject.status == "active"
	input.subject.role == "Admin"
	startswith(input.action, "admin.")
}
`

// OPAEvaluator evaluates the governance role gate using OPA Rego. The query is prepared once.
type OPAEvaluator struct {
	prepared rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the given Rego modules (DefaultRegoPolicy when none are given).
// Modules must define data.aegis.governance.allow.
func NewOPAEvaluator(ctx context.Context, policies ...string) (*OPAEvaluator, error) {
	if len(policies) == 0 {
		policies = []string{DefaultRegoPolicy}
	}
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	prepared, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy query: %w", err)
	}
	return &OPAEvaluator{prepared: prepared}, nil
}

// Allow evaluates the policy for subject and action. Evaluation errors deny.
func (e *OPAEvaluator) Allow(ctx context.Context, subject domain.Subject, action domain.Action) (bool, error) {
	input := map[string]interface{}{
		"subject": map[string]interface{}{
			"id":     subject.UserID,
			"role":   subject.Role,
			"status": subject.Status,
		},
		"action": string(action),
	}
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		slog.Warn("policy: evaluation failed, denying", "action", action, "err", err)
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck verifies that the prepared query evaluates and yields a boolean.
// Does not touch the database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.prepared.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"subject": map[string]interface{}{"id": "", "role": "", "status": ""},
		"action":  "",
	}))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return errors.New("policy query returned no result")
	}
	if _, ok := rs[0].Expressions[0].Value.(bool); !ok {
		return errors.New("policy query returned a non-boolean result")
	}
	return nil
}
