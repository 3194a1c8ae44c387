package dmntable

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// InputVariable is the identifier this package's CEL adapter reserves for
// the "current input value" binding while evaluating a rule's input
// entries. DMN's own notation conventionally calls this binding `?`, but
// `?` is not a legal CEL identifier, so callers write input entries such as
// `INPUT >= 18` or `INPUT in ["Gold", "Platinum"]` instead of `>= 18`.
const InputVariable = "INPUT"

// Program is the contract the evaluation core needs from a compiled
// expression: evaluate it against a variable binding and produce a value or
// an error. The core depends only on this interface, not on cel-go
// directly, so evaluator logic can be exercised against fakes in tests.
type Program interface {
	Eval(variables map[string]any) (any, error)
}

// CompiledExpression pairs an expression's source text with its compiled
// Program. It is the "pre-parsed expression handle" DecisionTable's string
// fields resolve to via EvalContext.Expressions.
type CompiledExpression struct {
	Source  string
	Program Program
}

// celProgram adapts a compiled cel.Program to the Program interface,
// unwrapping the ref.Val the CEL runtime returns into a plain Go value the
// same way the rules engine this evaluator was adapted from does
// (out.Value().(bool) at the call site).
type celProgram struct {
	prog cel.Program
}

func (c celProgram) Eval(variables map[string]any) (any, error) {
	out, _, err := c.prog.Eval(variables)
	if err != nil {
		return nil, err
	}
	return out.Value(), nil
}

// Compile compiles source in env and wraps the result as a
// CompiledExpression. It applies the same cost limit and state tracking the
// rules engine this evaluator was adapted from applies to every compiled
// rule, since decision-table entries are just as exposed to
// attacker-controlled or accidentally-expensive expressions as flat rules
// are.
func Compile(env *cel.Env, source string) (*CompiledExpression, error) {
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error in %q: %w", source, issues.Err())
	}

	prog, err := env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error in %q: %w", source, err)
	}

	return &CompiledExpression{Source: source, Program: celProgram{prog: prog}}, nil
}

// NewEnv creates a CEL environment declaring one DynType variable per name.
// Decision tables reference top-level variables by whatever names their
// input/output expressions use; the caller (typically package registry,
// from a namespace schema) collects those names ahead of compilation.
func NewEnv(variableNames ...string) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(variableNames)+1)
	opts = append(opts, cel.Variable(InputVariable, cel.DynType))
	for _, name := range variableNames {
		if name == InputVariable {
			continue
		}
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// evalExpr resolves text against ctx.Expressions and evaluates it with vars,
// wrapping any failure as an ExpressionFailure.
func evalExpr(ctx *EvalContext, text string, vars map[string]any) (any, error) {
	compiled, ok := ctx.Expressions[text]
	if !ok {
		return nil, newFailure(ExpressionFailure, "no compiled expression registered for %q", text)
	}

	value, err := compiled.Program.Eval(vars)
	if err != nil {
		return nil, newFailure(ExpressionFailure, "expression %q failed: %v", text, err)
	}
	return value, nil
}

// overlay returns a shallow copy of base with key set to value, leaving base
// untouched. It is the "copy-on-augment" mechanism §9 calls for: the
// reserved input-variable binding must be visible to one input-entry
// evaluation and nowhere else.
func overlay(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
