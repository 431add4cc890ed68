package mongo

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	keylio "github.com/Lymore01/keylio"
)

// maxRegexOperand caps the operand length of pattern operators before
// escaping, bounding the regex the store has to evaluate.
const maxRegexOperand = 256

// convertWhere translates a filter list into a native clause. A single
// condition is emitted bare; multiple conditions split into $and/$or
// groups by connector.
func (a *Adapter) convertWhere(where []keylio.Where) (bson.M, error) {
	if len(where) == 0 {
		return bson.M{}, nil
	}

	type tagged struct {
		condition bson.M
		connector keylio.Connector
	}
	conditions := make([]tagged, 0, len(where))
	for _, w := range where {
		cond, err := a.convertCondition(w)
		if err != nil {
			return nil, err
		}
		connector := w.Connector
		if connector == "" {
			connector = keylio.ConnectorAnd
		}
		conditions = append(conditions, tagged{condition: cond, connector: connector})
	}

	if len(conditions) == 1 {
		return conditions[0].condition, nil
	}

	var and, or []bson.M
	for _, c := range conditions {
		if c.connector == keylio.ConnectorOr {
			or = append(or, c.condition)
		} else {
			and = append(and, c.condition)
		}
	}
	clause := bson.M{}
	if len(and) > 0 {
		clause["$and"] = and
	}
	if len(or) > 0 {
		clause["$or"] = or
	}
	return clause, nil
}

func (a *Adapter) convertCondition(w keylio.Where) (bson.M, error) {
	field := fieldName(w.Field)
	op := w.Operator
	if op == "" {
		op = keylio.OpEq
	}

	switch op {
	case keylio.OpEq:
		v, err := a.serializeID(field, w.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: v}, nil
	case keylio.OpNe, keylio.OpLt, keylio.OpLte, keylio.OpGt, keylio.OpGte:
		v, err := a.serializeID(field, w.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{"$" + string(op): v}}, nil
	case keylio.OpIn, keylio.OpNotIn:
		native := "$in"
		if op == keylio.OpNotIn {
			native = "$nin"
		}
		values, err := a.serializeIDList(field, w.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{native: values}}, nil
	case keylio.OpContains:
		pattern, err := escapedPattern(w.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{"$regex": ".*" + pattern + ".*"}}, nil
	case keylio.OpStartsWith:
		pattern, err := escapedPattern(w.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{"$regex": "^" + pattern}}, nil
	case keylio.OpEndsWith:
		pattern, err := escapedPattern(w.Value)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{"$regex": pattern + "$"}}, nil
	default:
		return nil, fmt.Errorf("unsupported operator: %s", op)
	}
}

// escapedPattern renders a pattern operand with every regex metacharacter
// escaped. The escaping is the injection guard that keeps a value like
// ".*" matching the literal two characters instead of everything.
func escapedPattern(value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("pattern operator needs a string operand, got %T", value)
	}
	if len(s) > maxRegexOperand {
		s = s[:maxRegexOperand]
	}
	return regexp.QuoteMeta(s), nil
}

// serializeID opportunistically coerces id/_id values to ObjectID. A
// custom id generator disables coercion entirely; array values map
// element-wise; a non-string value that is not already an ObjectID is a
// hard failure rather than a silent pass-through.
func (a *Adapter) serializeID(field string, value any) (any, error) {
	if a.genID != nil {
		return value, nil
	}
	if field != "id" && field != "_id" {
		return value, nil
	}
	return coerceID(value)
}

func (a *Adapter) serializeIDList(field string, value any) ([]any, error) {
	values, ok := value.([]any)
	if !ok {
		single, err := a.serializeID(field, value)
		if err != nil {
			return nil, err
		}
		return []any{single}, nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		serialized, err := a.serializeID(field, v)
		if err != nil {
			return nil, err
		}
		out[i] = serialized
	}
	return out, nil
}

func coerceID(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if oid, err := primitive.ObjectIDFromHex(v); err == nil {
			return oid, nil
		}
		return v, nil
	case primitive.ObjectID:
		return v, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			coerced, err := coerceID(item)
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invalid ID value: %v (%T)", value, value)
	}
}
