package keylio

import "context"

// Operator is the provider-neutral comparison vocabulary understood by every
// adapter dialect.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

// Connector joins a Where entry to the rest of its clause.
type Connector string

const (
	ConnectorAnd Connector = "AND"
	ConnectorOr  Connector = "OR"
)

// Where is a single filter condition. A zero Operator means equality and a
// zero Connector means AND. A list of Where entries forms one clause; the
// adapter preserves AND/OR grouping in its native dialect.
type Where struct {
	Field     string
	Operator  Operator
	Value     any
	Connector Connector
}

// SortBy orders a FindMany result. Direction is "asc" or "desc".
type SortBy struct {
	Field     string
	Direction string
}

// QueryOptions carries pagination and ordering for FindMany.
type QueryOptions struct {
	Limit  int
	Offset int
	SortBy *SortBy
}

// Record is a row or document in transit across the adapter boundary.
// Field names are the wire contract: user{id,email,passwordHash,role,
// createdAt}, session{id,userId,sessionToken,expires,createdAt,updatedAt}.
type Record = map[string]any

// Adapter translates the query model to a concrete store dialect. All
// implementations share these semantics:
//
//   - an unknown logical model fails with a MODEL_NOT_FOUND AuthError
//   - FindOne returns (nil, nil) when no record matches
//   - Delete and DeleteMany succeed when nothing matches (idempotent)
//   - other store failures propagate to the caller
type Adapter interface {
	Create(ctx context.Context, model string, data Record) (Record, error)
	FindOne(ctx context.Context, model string, where []Where, fields ...string) (Record, error)
	FindMany(ctx context.Context, model string, where []Where, opts *QueryOptions) ([]Record, error)
	Update(ctx context.Context, model string, where []Where, update Record) (Record, error)
	UpdateMany(ctx context.Context, model string, where []Where, update Record) (int64, error)
	Delete(ctx context.Context, model string, where []Where) error
	DeleteMany(ctx context.Context, model string, where []Where) (int64, error)
	Count(ctx context.Context, model string, where []Where) (int64, error)
}

// Transactor is the optional transaction capability. The callback receives
// an adapter bound to the transactional context; returning an error rolls
// the transaction back.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx Adapter) error) error
}

// Logical model names used by the core.
const (
	ModelUser    = "user"
	ModelSession = "session"
)
