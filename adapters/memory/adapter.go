// Package memory implements the Keylio adapter contract in process memory.
// It backs tests and prototypes that want the full query model without a
// database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	keylio "github.com/Lymore01/keylio"
)

// Adapter stores records per logical model behind one lock. All records
// are copied on the way in and out, so callers never alias stored state.
type Adapter struct {
	mu     sync.RWMutex
	nextID int
	data   map[string][]keylio.Record
}

var _ keylio.Adapter = (*Adapter)(nil)

// New builds an adapter serving models, plus the defaults (user, session).
func New(models ...string) *Adapter {
	data := map[string][]keylio.Record{
		keylio.ModelUser:    {},
		keylio.ModelSession: {},
	}
	for _, m := range models {
		data[m] = []keylio.Record{}
	}
	return &Adapter{data: data}
}

func (a *Adapter) records(model string) ([]keylio.Record, error) {
	recs, ok := a.data[model]
	if !ok {
		return nil, keylio.Errorf(keylio.CodeModelNotFound,
			"Model %s does not exist in the store.", model)
	}
	return recs, nil
}

func (a *Adapter) Create(_ context.Context, model string, data keylio.Record) (keylio.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.records(model); err != nil {
		return nil, err
	}
	rec := copyRecord(data)
	if _, ok := rec["id"]; !ok {
		a.nextID++
		rec["id"] = fmt.Sprintf("%s-%d", model, a.nextID)
	}
	a.data[model] = append(a.data[model], rec)
	return copyRecord(rec), nil
}

func (a *Adapter) FindOne(_ context.Context, model string, where []keylio.Where, fields ...string) (keylio.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	recs, err := a.records(model)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		ok, err := matches(rec, where)
		if err != nil {
			return nil, err
		}
		if ok {
			return project(rec, fields), nil
		}
	}
	return nil, nil
}

func (a *Adapter) FindMany(_ context.Context, model string, where []keylio.Where, opts *keylio.QueryOptions) ([]keylio.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	recs, err := a.records(model)
	if err != nil {
		return nil, err
	}

	var out []keylio.Record
	for _, rec := range recs {
		ok, err := matches(rec, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, copyRecord(rec))
		}
	}

	if opts != nil {
		if opts.SortBy != nil && opts.SortBy.Field != "" {
			field, desc := opts.SortBy.Field, opts.SortBy.Direction == "desc"
			sort.SliceStable(out, func(i, j int) bool {
				less := compare(out[i][field], out[j][field]) < 0
				if desc {
					return !less
				}
				return less
			})
		}
		if opts.Offset > 0 {
			if opts.Offset >= len(out) {
				return nil, nil
			}
			out = out[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(out) {
			out = out[:opts.Limit]
		}
	}
	return out, nil
}

func (a *Adapter) Update(_ context.Context, model string, where []keylio.Where, update keylio.Record) (keylio.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	recs, err := a.records(model)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		ok, err := matches(rec, where)
		if err != nil {
			return nil, err
		}
		if ok {
			for k, v := range update {
				rec[k] = v
			}
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

func (a *Adapter) UpdateMany(_ context.Context, model string, where []keylio.Where, update keylio.Record) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	recs, err := a.records(model)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, rec := range recs {
		ok, err := matches(rec, where)
		if err != nil {
			return 0, err
		}
		if ok {
			for k, v := range update {
				rec[k] = v
			}
			n++
		}
	}
	return n, nil
}

// Delete removes the first matching record. A zero-match delete succeeds.
func (a *Adapter) Delete(_ context.Context, model string, where []keylio.Where) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	recs, err := a.records(model)
	if err != nil {
		return err
	}
	for i, rec := range recs {
		ok, err := matches(rec, where)
		if err != nil {
			return err
		}
		if ok {
			a.data[model] = append(recs[:i:i], recs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (a *Adapter) DeleteMany(_ context.Context, model string, where []keylio.Where) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	recs, err := a.records(model)
	if err != nil {
		return 0, err
	}
	var kept []keylio.Record
	var n int64
	for _, rec := range recs {
		ok, err := matches(rec, where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	a.data[model] = kept
	return n, nil
}

func (a *Adapter) Count(_ context.Context, model string, where []keylio.Where) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	recs, err := a.records(model)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, rec := range recs {
		ok, err := matches(rec, where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// matches evaluates the clause: every AND condition must hold, and when OR
// conditions exist at least one of them must hold as well.
func matches(rec keylio.Record, where []keylio.Where) (bool, error) {
	var orSeen, orHit bool
	for _, w := range where {
		hit, err := evaluate(rec, w)
		if err != nil {
			return false, err
		}
		if w.Connector == keylio.ConnectorOr {
			orSeen = true
			orHit = orHit || hit
			continue
		}
		if !hit {
			return false, nil
		}
	}
	if orSeen && !orHit {
		return false, nil
	}
	return true, nil
}

func evaluate(rec keylio.Record, w keylio.Where) (bool, error) {
	op := w.Operator
	if op == "" {
		op = keylio.OpEq
	}
	value, present := rec[w.Field]

	switch op {
	case keylio.OpEq:
		return present && compare(value, w.Value) == 0, nil
	case keylio.OpNe:
		return !present || compare(value, w.Value) != 0, nil
	case keylio.OpLt:
		return present && compare(value, w.Value) < 0, nil
	case keylio.OpLte:
		return present && compare(value, w.Value) <= 0, nil
	case keylio.OpGt:
		return present && compare(value, w.Value) > 0, nil
	case keylio.OpGte:
		return present && compare(value, w.Value) >= 0, nil
	case keylio.OpIn, keylio.OpNotIn:
		values, ok := w.Value.([]any)
		if !ok {
			values = []any{w.Value}
		}
		var hit bool
		for _, v := range values {
			if present && compare(value, v) == 0 {
				hit = true
				break
			}
		}
		if op == keylio.OpNotIn {
			return !hit, nil
		}
		return hit, nil
	case keylio.OpContains, keylio.OpStartsWith, keylio.OpEndsWith:
		operand, ok := w.Value.(string)
		if !ok {
			return false, fmt.Errorf("pattern operator needs a string operand, got %T", w.Value)
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		switch op {
		case keylio.OpStartsWith:
			return strings.HasPrefix(s, operand), nil
		case keylio.OpEndsWith:
			return strings.HasSuffix(s, operand), nil
		default:
			return strings.Contains(s, operand), nil
		}
	default:
		return false, fmt.Errorf("unsupported operator: %s", op)
	}
}

// compare orders two values of loosely matching types: times by instant,
// numbers numerically, everything else by string form.
func compare(a, b any) int {
	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func copyRecord(rec keylio.Record) keylio.Record {
	out := make(keylio.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func project(rec keylio.Record, fields []string) keylio.Record {
	if len(fields) == 0 {
		return copyRecord(rec)
	}
	out := make(keylio.Record, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}
