package engine

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
)

// filterCostLimit bounds the evaluation cost of a filter expression.
const filterCostLimit = 100000

// RepositoryFilter selects the repositories a run applies to with a CEL
// boolean expression over the variables owner, repo, name ("owner/repo"),
// origin and target.
//
// Example filters:
//
//	owner == "acme" && repo.startsWith("svc-")
//	target == "main"
//	!(name in ["acme/legacy", "acme/archive"])
type RepositoryFilter struct {
	expression string
	program    cel.Program
}

// NewRepositoryFilter compiles expression. Compilation failures are
// configuration errors.
func NewRepositoryFilter(expression string) (*RepositoryFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("owner", cel.StringType),
		cel.Variable("repo", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("origin", cel.StringType),
		cel.Variable("target", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %v", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), errors.CodeConfiguration,
			fmt.Sprintf("invalid repository filter %q", expression))
	}

	program, err := env.Program(ast, cel.CostLimit(filterCostLimit))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration,
			fmt.Sprintf("invalid repository filter %q", expression))
	}

	return &RepositoryFilter{expression: expression, program: program}, nil
}

// Match evaluates the filter for ref.
func (f *RepositoryFilter) Match(ref interfaces.RepositoryRef) (bool, error) {
	result, _, err := f.program.Eval(map[string]interface{}{
		"owner":  ref.Owner,
		"repo":   ref.Repo,
		"name":   ref.FullName(),
		"origin": ref.OriginBranch,
		"target": ref.TargetBranch,
	})
	if err != nil {
		return false, errors.Wrap(err, errors.CodeConfiguration,
			fmt.Sprintf("evaluating repository filter for %s", ref.FullName()))
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, errors.New(errors.CodeConfiguration,
			fmt.Sprintf("repository filter must return a boolean, got %v", result.Type()))
	}
	return matched, nil
}

func (f *RepositoryFilter) String() string {
	return f.expression
}
