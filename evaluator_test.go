package dmntable

import (
	"reflect"
	"strconv"
	"testing"
)

func scalarRule(matches bool) Rule {
	entry := "true"
	if !matches {
		entry = "false"
	}
	return Rule{
		InputEntries:  []InputEntry{{Expression: entry}},
		OutputEntries: []OutputEntry{{Expression: "1"}},
	}
}

// TestZeroInputsVacuousMatch covers §8's "zero inputs: all rules match".
func TestZeroInputsVacuousMatch(t *testing.T) {
	table := &DecisionTable{
		Outputs: []Output{{Name: "x"}},
		Rules: []Rule{
			{OutputEntries: []OutputEntry{{Expression: "1"}}},
		},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, nil, map[string]any{})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Kind != ResultScalar || result.Scalar != int64(1) {
		t.Fatalf("got %+v, want scalar 1", result)
	}
}

// TestZeroRulesUsesDefault covers §8's "zero rules: outcome equals the
// default-output outcome".
func TestZeroRulesUsesDefault(t *testing.T) {
	table := &DecisionTable{
		Outputs:   []Output{{Name: "x", Default: "42"}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, nil, map[string]any{})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Kind != ResultScalar || result.Scalar != int64(42) {
		t.Fatalf("got %+v, want scalar 42", result)
	}
}

// TestZeroRulesNoDefaultIsAbsent is the degenerate case of the above.
func TestZeroRulesNoDefaultIsAbsent(t *testing.T) {
	table := &DecisionTable{
		Outputs:   []Output{{Name: "x"}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, nil, map[string]any{})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !result.IsAbsent() {
		t.Fatalf("got %+v, want absent", result)
	}
}

// TestFirstIdempotence covers §8's round-trip property: narrowing by FIRST
// twice equals narrowing once.
func TestFirstIdempotence(t *testing.T) {
	table := &DecisionTable{
		Inputs:  []Input{{Expression: "x"}},
		Outputs: []Output{{Name: "picked"}},
		Rules: []Rule{
			{InputEntries: []InputEntry{{Expression: "true"}}, OutputEntries: []OutputEntry{{Expression: `"first"`}}},
			{InputEntries: []InputEntry{{Expression: "true"}}, OutputEntries: []OutputEntry{{Expression: `"second"`}}},
		},
		HitPolicy: HitPolicyFirst,
	}
	ctx := buildContext(t, table, []string{"x"}, map[string]any{"x": 1})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Kind != ResultScalar || result.Scalar != "first" {
		t.Fatalf("got %+v, want scalar \"first\"", result)
	}

	// Re-applying FIRST logic to the already-narrowed single match must
	// yield the identical outcome as narrowing the full set once.
	only, err := Evaluate(&DecisionTable{
		Inputs:    table.Inputs,
		Outputs:   table.Outputs,
		Rules:     table.Rules[:1],
		HitPolicy: HitPolicyFirst,
	}, ctx)
	if err != nil {
		t.Fatalf("Evaluate (narrowed): %v", err)
	}
	if !reflect.DeepEqual(result, only) {
		t.Fatalf("FIRST is not idempotent: %+v != %+v", result, only)
	}
}

// TestDefaultNeverInvokedWhenMatched ensures a table whose default
// expression would fail if evaluated does not fail when a rule matches.
func TestDefaultNeverInvokedWhenMatched(t *testing.T) {
	table := &DecisionTable{
		Inputs:    []Input{{Expression: "x"}},
		Outputs:   []Output{{Name: "y", Default: "1 / 0"}},
		Rules:     []Rule{{InputEntries: []InputEntry{{Expression: "true"}}, OutputEntries: []OutputEntry{{Expression: "9"}}}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, []string{"x"}, map[string]any{"x": 1})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v (default should never run)", err)
	}
	if result.Kind != ResultScalar || result.Scalar != int64(9) {
		t.Fatalf("got %+v, want scalar 9", result)
	}
}

// TestDeterminism evaluates the same table and context twice and expects an
// identical outcome.
func TestDeterminism(t *testing.T) {
	table := &DecisionTable{
		Inputs:    []Input{{Expression: "x"}},
		Outputs:   []Output{{Name: "y"}},
		Rules:     []Rule{{InputEntries: []InputEntry{{Expression: "INPUT > 0"}}, OutputEntries: []OutputEntry{{Expression: "x * 2"}}}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, []string{"x"}, map[string]any{"x": 21})

	first, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("non-deterministic: %+v != %+v", first, second)
	}
}

// TestUniqueViolation ensures more than one match under UNIQUE fails.
func TestUniqueViolation(t *testing.T) {
	table := &DecisionTable{
		Inputs:    []Input{{Expression: "x"}},
		Outputs:   []Output{{Name: "x"}},
		Rules:     []Rule{scalarRule(true), scalarRule(true)},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, []string{"x"}, map[string]any{"x": 1})

	_, err := Evaluate(table, ctx)
	f, ok := err.(*Failure)
	if !ok || f.Kind != UniqueViolation {
		t.Fatalf("got %v, want UniqueViolation", err)
	}
}

// TestInputEntryTypeFailure ensures a non-boolean input entry fails with an
// InputEntryTypeFailure.
func TestInputEntryTypeFailure(t *testing.T) {
	table := &DecisionTable{
		Inputs:    []Input{{Expression: "x"}},
		Outputs:   []Output{{Name: "y"}},
		Rules:     []Rule{{InputEntries: []InputEntry{{Expression: "INPUT + 1"}}, OutputEntries: []OutputEntry{{Expression: "1"}}}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, []string{"x"}, map[string]any{"x": 1})

	_, err := Evaluate(table, ctx)
	f, ok := err.(*Failure)
	if !ok || f.Kind != InputEntryTypeFailure {
		t.Fatalf("got %v, want InputEntryTypeFailure", err)
	}
}

// TestExpressionFailureOnMissingCompiledExpression covers the invariant
// that every referenced expression text must resolve via EvalContext.
func TestExpressionFailureOnMissingCompiledExpression(t *testing.T) {
	table := &DecisionTable{
		Outputs:   []Output{{Name: "x"}},
		Rules:     []Rule{{OutputEntries: []OutputEntry{{Expression: "not-registered"}}}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := &EvalContext{Variables: map[string]any{}, Expressions: map[string]*CompiledExpression{}}

	_, err := Evaluate(table, ctx)
	f, ok := err.(*Failure)
	if !ok || f.Kind != ExpressionFailure {
		t.Fatalf("got %v, want ExpressionFailure", err)
	}
}

// TestMissingOutputNameOnMultiOutputFails covers §9's requirement that a
// multi-output table names every output.
func TestMissingOutputNameOnMultiOutputFails(t *testing.T) {
	table := &DecisionTable{
		Outputs:   []Output{{Name: "a"}, {Name: ""}},
		Rules:     []Rule{{OutputEntries: []OutputEntry{{Expression: "1"}, {Expression: "2"}}}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, nil, map[string]any{})

	_, err := Evaluate(table, ctx)
	f, ok := err.(*Failure)
	if !ok || f.Kind != ExpressionFailure {
		t.Fatalf("got %v, want ExpressionFailure", err)
	}
}

// TestCollectCount returns the number of matched rules without evaluating
// any output entry.
func TestCollectCount(t *testing.T) {
	table := &DecisionTable{
		Outputs: []Output{{Name: "x"}},
		Rules: []Rule{
			{OutputEntries: []OutputEntry{{Expression: "not-compiled-and-should-never-run"}}},
			{OutputEntries: []OutputEntry{{Expression: "not-compiled-and-should-never-run"}}},
			{OutputEntries: []OutputEntry{{Expression: "not-compiled-and-should-never-run"}}},
		},
		HitPolicy:  HitPolicyCollect,
		Aggregator: AggregatorCount,
	}
	ctx := &EvalContext{Variables: map[string]any{}, Expressions: map[string]*CompiledExpression{}}

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Kind != ResultScalar || result.Scalar != 3 {
		t.Fatalf("got %+v, want scalar 3", result)
	}
}

// TestCollectMinMaxSum exercises the numeric aggregators.
func TestCollectMinMaxSum(t *testing.T) {
	build := func(agg Aggregator) *DecisionTable {
		return &DecisionTable{
			Outputs: []Output{{Name: "x"}},
			Rules: []Rule{
				{OutputEntries: []OutputEntry{{Expression: "3"}}},
				{OutputEntries: []OutputEntry{{Expression: "7"}}},
				{OutputEntries: []OutputEntry{{Expression: "5"}}},
			},
			HitPolicy:  HitPolicyCollect,
			Aggregator: agg,
		}
	}

	cases := []struct {
		agg  Aggregator
		want float64
	}{
		{AggregatorMin, 3},
		{AggregatorMax, 7},
		{AggregatorSum, 15},
	}
	for _, tc := range cases {
		table := build(tc.agg)
		ctx := buildContext(t, table, nil, map[string]any{})
		result, err := Evaluate(table, ctx)
		if err != nil {
			t.Fatalf("Evaluate(%v): %v", tc.agg, err)
		}
		if result.Kind != ResultScalar || result.Scalar != tc.want {
			t.Fatalf("Evaluate(%v) = %+v, want scalar %v", tc.agg, result, tc.want)
		}
	}
}

// TestCollectNoAggregatorBehavesLikeRuleOrder covers the absent-aggregator
// reduction in the HitPolicyCollect row of §4.6's table.
func TestCollectNoAggregatorBehavesLikeRuleOrder(t *testing.T) {
	table := &DecisionTable{
		Outputs: []Output{{Name: "x"}},
		Rules: []Rule{
			{OutputEntries: []OutputEntry{{Expression: "1"}}},
			{OutputEntries: []OutputEntry{{Expression: "2"}}},
		},
		HitPolicy:  HitPolicyCollect,
		Aggregator: AggregatorNone,
	}
	ctx := buildContext(t, table, nil, map[string]any{})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []any{int64(1), int64(2)}
	if result.Kind != ResultSequence || !reflect.DeepEqual(result.Sequence, want) {
		t.Fatalf("got %+v, want sequence %v", result, want)
	}
}

// TestSingleRuleSingleOutputBareScalar covers §8's boundary behavior.
func TestSingleRuleSingleOutputBareScalar(t *testing.T) {
	table := &DecisionTable{
		Outputs:   []Output{{Name: "x"}},
		Rules:     []Rule{{OutputEntries: []OutputEntry{{Expression: "7"}}}},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, nil, map[string]any{})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Kind != ResultScalar || result.Scalar != int64(7) {
		t.Fatalf("got %+v, want scalar 7", result)
	}
}

// TestInputVariableScopedToOneEntry ensures the reserved input-variable
// binding does not leak across input entries within the same rule, nor
// clobber a caller variable of the same conventional shape outside the
// augmented evaluation.
func TestInputVariableScopedToOneEntry(t *testing.T) {
	table := &DecisionTable{
		Inputs:  []Input{{Expression: "a"}, {Expression: "b"}},
		Outputs: []Output{{Name: "x"}},
		Rules: []Rule{
			{
				// Each entry only ever sees its own paired input value.
				InputEntries:  []InputEntry{{Expression: "INPUT == 1"}, {Expression: "INPUT == 2"}},
				OutputEntries: []OutputEntry{{Expression: "1"}},
			},
		},
		HitPolicy: HitPolicyUnique,
	}
	ctx := buildContext(t, table, []string{"a", "b"}, map[string]any{"a": 1, "b": 2})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Kind != ResultScalar || result.Scalar != int64(1) {
		t.Fatalf("got %+v, want scalar 1", result)
	}
	if _, leaked := ctx.Variables[InputVariable]; leaked {
		t.Fatalf("INPUT binding leaked into caller variables: %v", ctx.Variables)
	}
}

// TestPriorityMultiDigitLexicographicCollision covers §9's warning that
// priorityKey concatenates unpadded decimal position strings, so positions
// spanning more than one digit sort lexicographically rather than
// numerically. With a Priorities list of more than ten labels, a rule
// ranked at position 10 ("10") sorts ahead of one ranked at position 2
// ("2"), even though 2 is the more preferred (lower) position. Reproducing
// this exactly, rather than "fixing" it with a tuple comparison, is the
// documented required behavior.
func TestPriorityMultiDigitLexicographicCollision(t *testing.T) {
	priorities := make([]string, 11)
	for i := range priorities {
		priorities[i] = "p" + strconv.Itoa(i)
	}

	table := &DecisionTable{
		Inputs:  []Input{{Expression: "customer"}},
		Outputs: []Output{{Name: "tier", Priorities: priorities}},
		Rules: []Rule{
			{
				InputEntries:  []InputEntry{{Expression: "true"}},
				OutputEntries: []OutputEntry{{Expression: `"p2"`}},
			},
			{
				InputEntries:  []InputEntry{{Expression: "true"}},
				OutputEntries: []OutputEntry{{Expression: `"p10"`}},
			},
		},
		HitPolicy: HitPolicyPriority,
	}
	ctx := buildContext(t, table, []string{"customer"}, map[string]any{"customer": "anyone"})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if result.Kind != ResultScalar || result.Scalar != "p10" {
		t.Fatalf("got %+v, want scalar %q (position \"10\" sorts before \"2\" lexicographically)", result, "p10")
	}
}

// TestOutputOrderMultiDigitLexicographicCollision covers the same quirk for
// OUTPUT_ORDER, which reuses sortByPriority but returns every matched rule
// as a sequence instead of collapsing to the first.
func TestOutputOrderMultiDigitLexicographicCollision(t *testing.T) {
	priorities := make([]string, 11)
	for i := range priorities {
		priorities[i] = "p" + strconv.Itoa(i)
	}

	table := &DecisionTable{
		Inputs:  []Input{{Expression: "customer"}},
		Outputs: []Output{{Name: "tier", Priorities: priorities}},
		Rules: []Rule{
			{
				InputEntries:  []InputEntry{{Expression: "true"}},
				OutputEntries: []OutputEntry{{Expression: `"p2"`}},
			},
			{
				InputEntries:  []InputEntry{{Expression: "true"}},
				OutputEntries: []OutputEntry{{Expression: `"p10"`}},
			},
		},
		HitPolicy: HitPolicyOutputOrder,
	}
	ctx := buildContext(t, table, []string{"customer"}, map[string]any{"customer": "anyone"})

	result, err := Evaluate(table, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []any{"p10", "p2"}
	if result.Kind != ResultSequence || !reflect.DeepEqual(result.Sequence, want) {
		t.Fatalf("got %+v, want sequence %v", result, want)
	}
}
