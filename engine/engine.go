// Package engine compiles stored decision-table definitions into
// evaluation-ready dmntable.DecisionTable + dmntable.EvalContext pairs and
// caches both the compiled CEL programs and the definitions themselves.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/dmntable/dmntable"
	"github.com/dmntable/dmntable/cache"
	"github.com/dmntable/dmntable/internal/logger"
	"github.com/dmntable/dmntable/metrics"
	"github.com/dmntable/dmntable/store"
)

// Engine manages CEL environment and decision-table compilation/evaluation
// for a single namespace. All decision tables in a namespace share one CEL
// environment, so their compiled expressions share one program cache.
type Engine struct {
	namespace string
	env       *cel.Env
	store     store.TableStore
	cache     cache.TableCache
	metrics   *metrics.Metrics
	programs  map[string]*dmntable.CompiledExpression // expression source -> compiled handle
	mu        sync.RWMutex
}

// NewEngine creates an engine for namespace using env, compiling every
// active decision table already in store.
func NewEngine(namespace string, env *cel.Env, st store.TableStore, tc cache.TableCache) (*Engine, error) {
	en := &Engine{
		namespace: namespace,
		env:       env,
		store:     st,
		cache:     tc,
		programs:  make(map[string]*dmntable.CompiledExpression),
	}

	if err := en.CompileAllTables(); err != nil {
		return nil, fmt.Errorf("failed to compile decision tables: %w", err)
	}

	return en, nil
}

// SetMetrics attaches m to the engine; subsequent Evaluate calls record
// latency and outcome counters against it. A nil receiver on m's methods is
// safe, so this may be left unset in tests.
func (en *Engine) SetMetrics(m *metrics.Metrics) {
	en.metrics = m
}

// compileExpression compiles text once and memoizes the result; subsequent
// calls with the same text are a cache hit.
func (en *Engine) compileExpression(text string) (*dmntable.CompiledExpression, error) {
	en.mu.RLock()
	ce, ok := en.programs[text]
	en.mu.RUnlock()
	if ok {
		return ce, nil
	}

	ce, err := dmntable.Compile(en.env, text)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}

	en.mu.Lock()
	en.programs[text] = ce
	en.mu.Unlock()

	return ce, nil
}

// compileTableExpressions compiles every expression text a table
// references and returns the subset of the program cache it needs to
// evaluate, suitable for use as a dmntable.EvalContext.Expressions map.
func (en *Engine) compileTableExpressions(table *dmntable.DecisionTable) (map[string]*dmntable.CompiledExpression, error) {
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

	exprs := make(map[string]*dmntable.CompiledExpression, len(texts))
	for text := range texts {
		ce, err := en.compileExpression(text)
		if err != nil {
			return nil, err
		}
		exprs[text] = ce
	}
	return exprs, nil
}

// CompileTable validates that every expression in def compiles and warms
// the cache with def.
func (en *Engine) CompileTable(def *store.Definition) error {
	start := time.Now()
	defer func() { en.metrics.ObserveCompileLatency(time.Since(start)) }()

	if _, err := en.compileTableExpressions(def.Table); err != nil {
		return fmt.Errorf("failed to compile decision table %s: %w", def.ID, err)
	}
	en.cache.Set(en.namespace, def.ID, def)
	return nil
}

// CompileAllTables compiles every active decision table in the namespace's
// store and warms the cache with the results.
func (en *Engine) CompileAllTables() error {
	defs, err := en.store.ListActive(en.namespace)
	if err != nil {
		return err
	}

	for _, def := range defs {
		if err := en.CompileTable(def); err != nil {
			return err
		}
	}
	return nil
}

// AddTable validates, compiles, and stores a new decision table.
func (en *Engine) AddTable(def *store.Definition) error {
	if _, err := en.store.Get(def.Namespace, def.ID); err == nil {
		return fmt.Errorf("decision table %s/%s already exists", def.Namespace, def.ID)
	}

	start := time.Now()
	_, err := en.compileTableExpressions(def.Table)
	en.metrics.ObserveCompileLatency(time.Since(start))
	if err != nil {
		return fmt.Errorf("decision table validation failed: %w", err)
	}

	if err := en.store.Add(def); err != nil {
		return err
	}

	en.cache.Set(en.namespace, def.ID, def)
	return nil
}

// UpdateTable recompiles and replaces an existing decision table.
func (en *Engine) UpdateTable(def *store.Definition) error {
	start := time.Now()
	_, err := en.compileTableExpressions(def.Table)
	en.metrics.ObserveCompileLatency(time.Since(start))
	if err != nil {
		return fmt.Errorf("decision table validation failed: %w", err)
	}

	if err := en.store.Update(def); err != nil {
		return err
	}

	en.cache.Set(en.namespace, def.ID, def)
	return nil
}

// DeleteTable removes a decision table from the store and cache.
func (en *Engine) DeleteTable(tableID string) error {
	if err := en.store.Delete(en.namespace, tableID); err != nil {
		return err
	}
	en.cache.Invalidate(en.namespace, tableID)
	return nil
}

// Evaluate evaluates the decision table named by tableID against variables.
// It tries the cache first and falls back to the store on a miss.
func (en *Engine) Evaluate(tableID string, variables map[string]any) (dmntable.Result, error) {
	start := time.Now()
	defer func() { en.metrics.ObserveEvaluateLatency(en.namespace, time.Since(start)) }()

	def, ok := en.cache.Get(en.namespace, tableID)
	if !ok {
		logger.CacheMiss()
		var err error
		def, err = en.store.Get(en.namespace, tableID)
		if err != nil {
			logger.StoreError()
			return dmntable.Result{}, err
		}
		en.cache.Set(en.namespace, tableID, def)
	}

	exprs, err := en.compileTableExpressions(def.Table)
	if err != nil {
		return dmntable.Result{}, err
	}

	ctx := &dmntable.EvalContext{Variables: variables, Expressions: exprs}
	result, err := dmntable.Evaluate(def.Table, ctx)
	if err != nil {
		logger.EvalFailure()
		if f, ok := err.(*dmntable.Failure); ok {
			en.metrics.IncrementOutcome(def.Table.HitPolicy.String(), f.Kind.String())
		}
		return result, err
	}
	en.metrics.IncrementOutcome(def.Table.HitPolicy.String(), resultKindName(result.Kind))
	return result, nil
}

func resultKindName(kind dmntable.ResultKind) string {
	switch kind {
	case dmntable.ResultAbsent:
		return "absent"
	case dmntable.ResultScalar:
		return "scalar"
	case dmntable.ResultMapping:
		return "mapping"
	case dmntable.ResultSequence:
		return "sequence"
	default:
		return "unknown"
	}
}
