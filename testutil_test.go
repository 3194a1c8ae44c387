package dmntable

import (
	"testing"

	"github.com/google/cel-go/cel"
)

// buildContext compiles every distinct expression string referenced by
// table plus any additional expressions listed in extra, using a CEL
// environment declaring one DynType variable per name in variableNames,
// and returns an EvalContext with the given variables bound.
func buildContext(t *testing.T, table *DecisionTable, variableNames []string, variables map[string]any, extra ...string) *EvalContext {
	t.Helper()

	env, err := NewEnv(variableNames...)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}

	texts := map[string]struct{}{}
	for _, in := range table.Inputs {
		texts[in.Expression] = struct{}{}
	}
	for _, out := range table.Outputs {
		if out.Default != "" {
			texts[out.Default] = struct{}{}
		}
	}
	for _, r := range table.Rules {
		for _, e := range r.InputEntries {
			texts[e.Expression] = struct{}{}
		}
		for _, e := range r.OutputEntries {
			texts[e.Expression] = struct{}{}
		}
	}
	for _, e := range extra {
		texts[e] = struct{}{}
	}

	compiled := make(map[string]*CompiledExpression, len(texts))
	for text := range texts {
		ce, err := compileForTest(t, env, text)
		if err != nil {
			t.Fatalf("compiling %q: %v", text, err)
		}
		compiled[text] = ce
	}

	return &EvalContext{Variables: variables, Expressions: compiled}
}

func compileForTest(t *testing.T, env *cel.Env, text string) (*CompiledExpression, error) {
	t.Helper()
	return Compile(env, text)
}
