// Package gorm implements the Keylio adapter contract for relational
// databases through GORM.
package gorm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"gorm.io/gorm"

	keylio "github.com/Lymore01/keylio"
)

// DefaultLimit caps relational reads that specify no explicit limit, so a
// missing limit never turns into an unbounded scan.
const DefaultLimit = 100

// Config customizes the adapter. Models maps logical model names to table
// names; entries merge over the defaults (user→users, session→sessions).
type Config struct {
	Models map[string]string
}

// Adapter is a relational-dialect adapter over a *gorm.DB handle. The
// logical-model registry is resolved once at construction; per-call model
// lookup only consults the registry.
type Adapter struct {
	db     *gorm.DB
	tables map[string]string
}

var _ keylio.Adapter = (*Adapter)(nil)
var _ keylio.Transactor = (*Adapter)(nil)

// New builds an adapter bound to db.
func New(db *gorm.DB, cfg *Config) *Adapter {
	tables := map[string]string{
		keylio.ModelUser:    "users",
		keylio.ModelSession: "sessions",
	}
	if cfg != nil {
		for model, table := range cfg.Models {
			tables[model] = table
		}
	}
	return &Adapter{db: db, tables: tables}
}

// table resolves a logical model to its table. Lookup tolerates exact,
// lower-cased and camel-cased spellings, in that order, to forgive
// naming-convention mismatches between configuration and schema.
func (a *Adapter) table(model string) (string, error) {
	if t, ok := a.tables[model]; ok {
		return t, nil
	}
	if t, ok := a.tables[strings.ToLower(model)]; ok {
		return t, nil
	}
	if t, ok := a.tables[lowerCamel(model)]; ok {
		return t, nil
	}
	return "", keylio.Errorf(keylio.CodeModelNotFound,
		"Model %s does not exist in the database. Register it in the adapter's model map.", model)
}

func lowerCamel(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func (a *Adapter) query(ctx context.Context, model string) (*gorm.DB, error) {
	table, err := a.table(model)
	if err != nil {
		return nil, err
	}
	return a.db.WithContext(ctx).Table(table), nil
}

func (a *Adapter) Create(ctx context.Context, model string, data keylio.Record) (keylio.Record, error) {
	q, err := a.query(ctx, model)
	if err != nil {
		return nil, err
	}
	row := copyRecord(data)
	if err := q.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (a *Adapter) FindOne(ctx context.Context, model string, where []keylio.Where, fields ...string) (keylio.Record, error) {
	q, err := a.query(ctx, model)
	if err != nil {
		return nil, err
	}
	cl, err := buildWhere(where)
	if err != nil {
		return nil, err
	}
	q = a.apply(q, cl)
	if len(fields) > 0 {
		q = q.Select(fields)
	}
	var rec map[string]any
	if err := q.Take(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (a *Adapter) FindMany(ctx context.Context, model string, where []keylio.Where, opts *keylio.QueryOptions) ([]keylio.Record, error) {
	q, err := a.query(ctx, model)
	if err != nil {
		return nil, err
	}
	cl, err := buildWhere(where)
	if err != nil {
		return nil, err
	}
	q = a.apply(q, cl)

	limit, offset := DefaultLimit, 0
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.Offset > 0 {
			offset = opts.Offset
		}
		if opts.SortBy != nil && opts.SortBy.Field != "" {
			dir := "asc"
			if strings.EqualFold(opts.SortBy.Direction, "desc") {
				dir = "desc"
			}
			q = q.Order(fmt.Sprintf("%s %s", quoteColumn(opts.SortBy.Field), dir))
		}
	}
	q = q.Limit(limit).Offset(offset)

	var recs []map[string]any
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]keylio.Record, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out, nil
}

// Update resolves the target row by its filters, then mutates it by primary
// id. The store needs unique-key targeting for single-row mutation, so the
// two-step resolve is required, not an optimization. Returns (nil, nil)
// when no row matches.
func (a *Adapter) Update(ctx context.Context, model string, where []keylio.Where, update keylio.Record) (keylio.Record, error) {
	target, err := a.FindOne(ctx, model, where)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, nil
	}

	q, err := a.query(ctx, model)
	if err != nil {
		return nil, err
	}
	id, hasID := target["id"]
	if hasID {
		q = q.Where("id = ?", id)
	} else {
		cl, err := buildWhere(where)
		if err != nil {
			return nil, err
		}
		q = a.apply(q, cl)
	}
	if err := q.Updates(copyRecord(update)).Error; err != nil {
		return nil, err
	}

	if hasID {
		return a.FindOne(ctx, model, []keylio.Where{{Field: "id", Value: id}})
	}
	return a.FindOne(ctx, model, where)
}

func (a *Adapter) UpdateMany(ctx context.Context, model string, where []keylio.Where, update keylio.Record) (int64, error) {
	q, err := a.query(ctx, model)
	if err != nil {
		return 0, err
	}
	cl, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	q = a.apply(q, cl)
	if cl.empty() {
		q = q.Where("1 = 1")
	}
	res := q.Updates(copyRecord(update))
	return res.RowsAffected, res.Error
}

// Delete removes the single row matching where. Deleting a row that does
// not exist succeeds: deletions are idempotent.
func (a *Adapter) Delete(ctx context.Context, model string, where []keylio.Where) error {
	target, err := a.FindOne(ctx, model, where)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}

	q, err := a.query(ctx, model)
	if err != nil {
		return err
	}
	if id, ok := target["id"]; ok {
		return q.Where("id = ?", id).Delete(nil).Error
	}
	cl, err := buildWhere(where)
	if err != nil {
		return err
	}
	return a.apply(q, cl).Delete(nil).Error
}

func (a *Adapter) DeleteMany(ctx context.Context, model string, where []keylio.Where) (int64, error) {
	q, err := a.query(ctx, model)
	if err != nil {
		return 0, err
	}
	cl, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	q = a.apply(q, cl)
	if cl.empty() {
		q = q.Where("1 = 1")
	}
	res := q.Delete(nil)
	return res.RowsAffected, res.Error
}

func (a *Adapter) Count(ctx context.Context, model string, where []keylio.Where) (int64, error) {
	q, err := a.query(ctx, model)
	if err != nil {
		return 0, err
	}
	cl, err := buildWhere(where)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := a.apply(q, cl).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Transaction runs fn against an adapter bound to a database transaction.
// Returning an error from fn rolls the transaction back.
func (a *Adapter) Transaction(ctx context.Context, fn func(tx keylio.Adapter) error) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &Adapter{db: tx, tables: a.tables}
		return fn(scoped)
	})
}

func copyRecord(rec keylio.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
