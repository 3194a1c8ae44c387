// Package dmntable implements the evaluation core of a DMN decision-table
// processor: given a decision-table model and a variable binding, it computes
// the table's result by evaluating input expressions, matching rules, and
// combining their outputs according to the table's hit policy.
//
// The package never compiles or parses expressions itself beyond the small
// CEL-backed adapter in expression.go; a DecisionTable's entries carry raw
// expression source text, and the caller supplies an EvalContext whose
// Expressions map resolves that text to a compiled handle. This keeps
// DecisionTable trivially serializable (it holds only strings) while the
// compiled handles are owned by the caller (package engine memoizes them
// across evaluations).
package dmntable

// HitPolicy selects how the combinator reduces matched rules into a result.
// The zero value, HitPolicyUnique, is also the value used when a table's
// serialized form omits a hit policy (DMN treats absence as UNIQUE).
type HitPolicy int

const (
	HitPolicyUnique HitPolicy = iota
	HitPolicyFirst
	HitPolicyAny
	HitPolicyPriority
	HitPolicyRuleOrder
	HitPolicyOutputOrder
	HitPolicyCollect
)

func (p HitPolicy) String() string {
	switch p {
	case HitPolicyUnique:
		return "UNIQUE"
	case HitPolicyFirst:
		return "FIRST"
	case HitPolicyAny:
		return "ANY"
	case HitPolicyPriority:
		return "PRIORITY"
	case HitPolicyRuleOrder:
		return "RULE_ORDER"
	case HitPolicyOutputOrder:
		return "OUTPUT_ORDER"
	case HitPolicyCollect:
		return "COLLECT"
	default:
		return "UNKNOWN_HIT_POLICY"
	}
}

// Aggregator selects the reduction COLLECT applies to matched rules' single
// output value. AggregatorNone means COLLECT behaves like RULE_ORDER.
type Aggregator int

const (
	AggregatorNone Aggregator = iota
	AggregatorMin
	AggregatorMax
	AggregatorSum
	AggregatorCount
)

func (a Aggregator) String() string {
	switch a {
	case AggregatorNone:
		return "NONE"
	case AggregatorMin:
		return "MIN"
	case AggregatorMax:
		return "MAX"
	case AggregatorSum:
		return "SUM"
	case AggregatorCount:
		return "COUNT"
	default:
		return "UNKNOWN_AGGREGATOR"
	}
}

// Input is one input column: an expression evaluated once per table
// evaluation against the caller's variables to produce that column's value.
type Input struct {
	Expression string
}

// Output is one output column. Name is mandatory whenever a table declares
// more than one output; Default, if non-empty, is evaluated when no rule
// matches. Priorities orders the literal output values by preference for the
// PRIORITY and OUTPUT_ORDER hit policies; a value absent from Priorities
// sorts ahead of any listed value (see the package-level sort-key doc on
// priorityKey in hitpolicy.go).
type Output struct {
	Name       string
	Default    string
	Priorities []string
}

// InputEntry is one rule's test against one input column.
type InputEntry struct {
	Expression string
}

// OutputEntry is one rule's value for one output column.
type OutputEntry struct {
	Expression string
}

// Rule is one row of a decision table. InputEntries and OutputEntries must
// each align positionally with the table's Inputs and Outputs.
type Rule struct {
	InputEntries  []InputEntry
	OutputEntries []OutputEntry
}

// DecisionTable is the full, serializable decision-table model this package
// evaluates.
type DecisionTable struct {
	Inputs     []Input
	Outputs    []Output
	Rules      []Rule
	HitPolicy  HitPolicy
	Aggregator Aggregator
}

// EvalContext is the caller-supplied, read-only evaluation environment:
// Variables is the binding referenced by the table's expressions, and
// Expressions resolves every expression's source text to its compiled
// handle. Evaluate never mutates either map.
type EvalContext struct {
	Variables   map[string]any
	Expressions map[string]*CompiledExpression
}

// ResultKind tags the shape of a successful Result.
type ResultKind int

const (
	ResultAbsent ResultKind = iota
	ResultScalar
	ResultMapping
	ResultSequence
)

// Result is the outcome of a successful evaluation: absent, a bare scalar, a
// mapping from output name to value, or an ordered sequence whose elements
// are themselves scalars or mappings (never a mix, per §4.5).
type Result struct {
	Kind     ResultKind
	Scalar   any
	Mapping  map[string]any
	Sequence []any
}

// IsAbsent reports whether the table produced no result (no rule matched and
// no default output was defined).
func (r Result) IsAbsent() bool {
	return r.Kind == ResultAbsent
}
