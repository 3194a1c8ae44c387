package dmntable

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// combine is invoked only once at least one rule has matched. It narrows
// the matched-rule set for HitPolicyFirst, evaluates that set's outputs,
// then reduces per the table's hit policy.
func combine(ctx *EvalContext, table *DecisionTable, matched []int) (Result, error) {
	switch table.HitPolicy {
	case HitPolicyFirst:
		mappings, err := evaluateOutputsFor(ctx, table, matched[:1])
		if err != nil {
			return Result{}, err
		}
		return single(mappings), nil

	case HitPolicyUnique:
		mappings, err := evaluateOutputsFor(ctx, table, matched)
		if err != nil {
			return Result{}, err
		}
		if len(mappings) > 1 {
			return Result{}, newFailure(UniqueViolation, "UNIQUE hit policy matched %d rules, expected at most 1: %v", len(mappings), mappings)
		}
		return single(mappings), nil

	case HitPolicyAny:
		mappings, err := evaluateOutputsFor(ctx, table, matched)
		if err != nil {
			return Result{}, err
		}
		if len(dedupe(mappings)) > 1 {
			return Result{}, newFailure(AnyViolation, "ANY hit policy matched rules with conflicting outputs: %v", dedupe(mappings))
		}
		return single(mappings), nil

	case HitPolicyPriority:
		mappings, err := evaluateOutputsFor(ctx, table, matched)
		if err != nil {
			return Result{}, err
		}
		sortByPriority(table, mappings)
		return single(mappings), nil

	case HitPolicyOutputOrder:
		mappings, err := evaluateOutputsFor(ctx, table, matched)
		if err != nil {
			return Result{}, err
		}
		sortByPriority(table, mappings)
		return multiple(mappings), nil

	case HitPolicyRuleOrder:
		mappings, err := evaluateOutputsFor(ctx, table, matched)
		if err != nil {
			return Result{}, err
		}
		return multiple(mappings), nil

	case HitPolicyCollect:
		return collect(ctx, table, matched)

	default:
		// Exhaustive per §9: an unrecognized hit-policy tag is a
		// programming error in the caller that built this table, not a
		// runtime failure this evaluator should degrade gracefully from.
		panic("dmntable: unknown hit policy " + table.HitPolicy.String())
	}
}

// collect implements HitPolicyCollect. COUNT never evaluates outputs (it
// only needs how many rules matched); the numeric aggregators require every
// matched rule to have produced exactly one numeric output; the absent
// aggregator behaves like RULE_ORDER.
func collect(ctx *EvalContext, table *DecisionTable, matched []int) (Result, error) {
	if table.Aggregator == AggregatorCount {
		return Result{Kind: ResultScalar, Scalar: len(matched)}, nil
	}

	mappings, err := evaluateOutputsFor(ctx, table, matched)
	if err != nil {
		return Result{}, err
	}

	switch table.Aggregator {
	case AggregatorNone:
		return multiple(mappings), nil
	case AggregatorMin, AggregatorMax, AggregatorSum:
		return aggregateNumeric(mappings, table.Aggregator)
	default:
		panic("dmntable: unknown aggregator " + table.Aggregator.String())
	}
}

// aggregateNumeric reduces a list of single-output mappings to one numeric
// scalar. Every mapping must carry exactly one output whose value is
// numeric; any other shape is a NumericAggregationFailure naming the
// offending rule.
func aggregateNumeric(mappings []map[string]any, agg Aggregator) (Result, error) {
	values := make([]float64, len(mappings))
	for i, m := range mappings {
		if len(m) != 1 {
			return Result{}, newFailure(NumericAggregationFailure, "COLLECT %s requires exactly one output per matched rule, rule at position %d produced %d", agg, i, len(m))
		}
		var v any
		for _, vv := range m {
			v = vv
		}
		f, ok := numeric(v)
		if !ok {
			return Result{}, newFailure(NumericAggregationFailure, "COLLECT %s requires numeric output values, got %v (%T) at position %d", agg, v, v, i)
		}
		values[i] = f
	}

	switch agg {
	case AggregatorMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return Result{Kind: ResultScalar, Scalar: m}, nil
	case AggregatorMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return Result{Kind: ResultScalar, Scalar: m}, nil
	case AggregatorSum:
		var s float64
		for _, v := range values {
			s += v
		}
		return Result{Kind: ResultScalar, Scalar: s}, nil
	}
	panic("dmntable: unreachable aggregator " + agg.String())
}

// numeric converts the expression-engine value universe's numeric
// representations to float64.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// dedupe returns the structurally-distinct mappings in mappings, preserving
// first-occurrence order. Structural equality is used because ANY compares
// whole output mappings, not just their numeric contents.
func dedupe(mappings []map[string]any) []map[string]any {
	var out []map[string]any
	for _, m := range mappings {
		isDup := false
		for _, seen := range out {
			if reflect.DeepEqual(m, seen) {
				isDup = true
				break
			}
		}
		if !isDup {
			out = append(out, m)
		}
	}
	return out
}

// sortByPriority stably sorts mappings ascending by priorityKey, so ties
// (including "no priority list configured for any output") retain the
// matched rules' declaration order.
func sortByPriority(table *DecisionTable, mappings []map[string]any) {
	keys := make([]string, len(mappings))
	for i, m := range mappings {
		keys[i] = priorityKey(table, m)
	}
	sort.SliceStable(mappings, func(i, j int) bool {
		return keys[i] < keys[j]
	})
}

// priorityKey builds the sort key described in §4.6: for each output, in
// declaration order, the 0-based position of the mapping's value in that
// output's Priorities list rendered as a decimal string, concatenated
// directly with no separator, or the empty string when the value isn't
// listed. Because the sort compares these keys lexicographically, an
// unlisted value sorts ahead of any listed value, and multi-digit positions
// can produce non-intuitive orderings against adjacent single-digit fields.
// This is the legacy behavior §9 requires implementers to reproduce exactly
// rather than switch to tuple comparison.
func priorityKey(table *DecisionTable, mapping map[string]any) string {
	var sb strings.Builder
	for _, o := range table.Outputs {
		v, ok := mapping[o.Name]
		if !ok {
			continue
		}
		pos := priorityPosition(o.Priorities, v)
		if pos >= 0 {
			sb.WriteString(strconv.Itoa(pos))
		}
	}
	return sb.String()
}

func priorityPosition(priorities []string, v any) int {
	label, ok := v.(string)
	if !ok {
		return -1
	}
	for i, p := range priorities {
		if p == label {
			return i
		}
	}
	return -1
}
