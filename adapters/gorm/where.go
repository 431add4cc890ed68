package gorm

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	keylio "github.com/Lymore01/keylio"
)

// condition is one field-operator-value triple rendered as a SQL fragment.
type condition struct {
	expr string
	args []any
}

// whereClause is the relational translation of a Where list: the top-level
// AND group and OR group. Empty groups are omitted when applied.
type whereClause struct {
	and []condition
	or  []condition
}

func (c whereClause) empty() bool {
	return len(c.and) == 0 && len(c.or) == 0
}

// buildWhere splits the filter list into AND/OR groups and maps each entry
// through the operator table.
func buildWhere(where []keylio.Where) (whereClause, error) {
	var cl whereClause
	for _, w := range where {
		cond, err := buildCondition(w)
		if err != nil {
			return whereClause{}, err
		}
		if w.Connector == keylio.ConnectorOr {
			cl.or = append(cl.or, cond)
		} else {
			cl.and = append(cl.and, cond)
		}
	}
	return cl, nil
}

func buildCondition(w keylio.Where) (condition, error) {
	field := quoteColumn(w.Field)
	op := w.Operator
	if op == "" {
		op = keylio.OpEq
	}
	switch op {
	case keylio.OpEq:
		return condition{expr: field + " = ?", args: []any{w.Value}}, nil
	case keylio.OpNe:
		return condition{expr: field + " <> ?", args: []any{w.Value}}, nil
	case keylio.OpLt:
		return condition{expr: field + " < ?", args: []any{w.Value}}, nil
	case keylio.OpLte:
		return condition{expr: field + " <= ?", args: []any{w.Value}}, nil
	case keylio.OpGt:
		return condition{expr: field + " > ?", args: []any{w.Value}}, nil
	case keylio.OpGte:
		return condition{expr: field + " >= ?", args: []any{w.Value}}, nil
	case keylio.OpIn:
		return condition{expr: field + " IN ?", args: []any{w.Value}}, nil
	case keylio.OpNotIn:
		return condition{expr: field + " NOT IN ?", args: []any{w.Value}}, nil
	case keylio.OpContains:
		return likeCondition(field, "%%%s%%", w.Value)
	case keylio.OpStartsWith:
		return likeCondition(field, "%s%%", w.Value)
	case keylio.OpEndsWith:
		return likeCondition(field, "%%%s", w.Value)
	default:
		return condition{}, fmt.Errorf("unsupported operator: %s", op)
	}
}

// likeCondition renders a pattern-match condition with LIKE metacharacters
// in the operand escaped, so a value is always matched literally.
func likeCondition(field, pattern string, value any) (condition, error) {
	s, ok := value.(string)
	if !ok {
		return condition{}, fmt.Errorf("pattern operator needs a string operand, got %T", value)
	}
	return condition{
		expr: field + ` LIKE ? ESCAPE '\'`,
		args: []any{fmt.Sprintf(pattern, escapeLike(s))},
	}, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// quoteColumn guards column identifiers arriving from the query model.
// Anything but a plain identifier is reduced to its identifier characters.
func quoteColumn(field string) string {
	var b strings.Builder
	for _, r := range field {
		if r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// apply attaches the clause to a query: AND conditions chain directly, OR
// conditions form one grouped disjunction ANDed with the rest.
func (a *Adapter) apply(q *gorm.DB, cl whereClause) *gorm.DB {
	for _, c := range cl.and {
		q = q.Where(c.expr, c.args...)
	}
	if len(cl.or) > 0 {
		group := a.db.Session(&gorm.Session{NewDB: true}).Where(cl.or[0].expr, cl.or[0].args...)
		for _, c := range cl.or[1:] {
			group = group.Or(c.expr, c.args...)
		}
		q = q.Where(group)
	}
	return q
}
