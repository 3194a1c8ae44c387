package dmntable

// Evaluate computes a decision table's result against ctx. It evaluates the
// table's inputs, matches rules, and either combines the matched rules'
// outputs per the table's hit policy or, if nothing matched, evaluates the
// outputs' default expressions.
func Evaluate(table *DecisionTable, ctx *EvalContext) (Result, error) {
	if err := validateOutputNames(table); err != nil {
		return Result{}, err
	}

	inputValues, err := evaluateInputs(table, ctx)
	if err != nil {
		return Result{}, err
	}

	matched, err := matchRules(ctx, table, inputValues)
	if err != nil {
		return Result{}, err
	}

	if len(matched) == 0 {
		return evaluateDefaults(ctx, table)
	}

	return combine(ctx, table, matched)
}

// validateOutputNames enforces §9's "name requirement for outputs": a
// missing name is tolerated only when there is exactly one output, since a
// single output's mapping key is never observed by the caller (Result
// collapses it to a bare scalar).
func validateOutputNames(table *DecisionTable) error {
	if len(table.Outputs) <= 1 {
		return nil
	}
	for _, o := range table.Outputs {
		if o.Name == "" {
			return newFailure(ExpressionFailure, "output name is required when a decision table declares more than one output")
		}
	}
	return nil
}

// evaluateInputs evaluates every input expression once, in declaration
// order, against the caller's unaugmented variables. It fails fast: the
// first failing expression stops evaluation of the rest.
func evaluateInputs(table *DecisionTable, ctx *EvalContext) ([]any, error) {
	values := make([]any, len(table.Inputs))
	for i, in := range table.Inputs {
		v, err := evalExpr(ctx, in.Expression, ctx.Variables)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// matchRules returns the indices, in declaration order, of every rule whose
// input entries all evaluated to true.
func matchRules(ctx *EvalContext, table *DecisionTable, inputValues []any) ([]int, error) {
	var matched []int
	for ri, rule := range table.Rules {
		ok, err := matchRule(ctx, rule, inputValues)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, ri)
		}
	}
	return matched, nil
}

// matchRule evaluates one rule's input entries left to right, short-
// circuiting on the first false. An entry with no input columns (an empty
// InputEntries list) vacuously matches.
func matchRule(ctx *EvalContext, rule Rule, inputValues []any) (bool, error) {
	for i, entry := range rule.InputEntries {
		augmented := overlay(ctx.Variables, InputVariable, inputValues[i])
		v, err := evalExpr(ctx, entry.Expression, augmented)
		if err != nil {
			return false, err
		}
		b, ok := v.(bool)
		if !ok {
			return false, newFailure(InputEntryTypeFailure, "input entry %q evaluated to non-boolean value %v (%T)", entry.Expression, v, v)
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}

// evaluateRuleOutputs evaluates one rule's output entries against the
// unaugmented caller variables, producing a mapping from output name to
// value.
func evaluateRuleOutputs(ctx *EvalContext, table *DecisionTable, rule Rule) (map[string]any, error) {
	mapping := make(map[string]any, len(rule.OutputEntries))
	for i, entry := range rule.OutputEntries {
		v, err := evalExpr(ctx, entry.Expression, ctx.Variables)
		if err != nil {
			return nil, err
		}
		mapping[table.Outputs[i].Name] = v
	}
	return mapping, nil
}

// evaluateOutputsFor evaluates the outputs of each rule named by indices, in
// order, failing at the first failing entry.
func evaluateOutputsFor(ctx *EvalContext, table *DecisionTable, indices []int) ([]map[string]any, error) {
	mappings := make([]map[string]any, len(indices))
	for i, ri := range indices {
		m, err := evaluateRuleOutputs(ctx, table, table.Rules[ri])
		if err != nil {
			return nil, err
		}
		mappings[i] = m
	}
	return mappings, nil
}

// evaluateDefaults runs when no rule matched. It evaluates every output's
// default expression (skipping outputs with none) and shapes the result:
// no defaults declared is absent, exactly one is a bare scalar, more than
// one is a mapping.
func evaluateDefaults(ctx *EvalContext, table *DecisionTable) (Result, error) {
	mapping := make(map[string]any)
	for _, o := range table.Outputs {
		if o.Default == "" {
			continue
		}
		v, err := evalExpr(ctx, o.Default, ctx.Variables)
		if err != nil {
			return Result{}, err
		}
		mapping[o.Name] = v
	}

	switch len(mapping) {
	case 0:
		return Result{Kind: ResultAbsent}, nil
	case 1:
		for _, v := range mapping {
			return Result{Kind: ResultScalar, Scalar: v}, nil
		}
	}
	return Result{Kind: ResultMapping, Mapping: mapping}, nil
}

// single collapses a list of output mappings to the shape of a single
// outcome: absent for an empty list, a bare scalar when the first mapping
// has exactly one key, otherwise the mapping itself.
func single(mappings []map[string]any) Result {
	if len(mappings) == 0 {
		return Result{Kind: ResultAbsent}
	}
	m := mappings[0]
	if len(m) == 1 {
		for _, v := range m {
			return Result{Kind: ResultScalar, Scalar: v}
		}
	}
	return Result{Kind: ResultMapping, Mapping: m}
}

// multiple shapes a list of output mappings as an ordered outcome: absent
// for an empty list, single's collapse for exactly one, and otherwise a
// sequence of bare scalars (if every mapping has exactly one key) or a
// sequence of mappings.
func multiple(mappings []map[string]any) Result {
	if len(mappings) == 0 {
		return Result{Kind: ResultAbsent}
	}
	if len(mappings) == 1 {
		return single(mappings)
	}

	allSingle := true
	for _, m := range mappings {
		if len(m) != 1 {
			allSingle = false
			break
		}
	}

	seq := make([]any, len(mappings))
	for i, m := range mappings {
		if allSingle {
			for _, v := range m {
				seq[i] = v
			}
		} else {
			seq[i] = m
		}
	}
	return Result{Kind: ResultSequence, Sequence: seq}
}
