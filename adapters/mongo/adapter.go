// Package mongo implements the Keylio adapter contract for MongoDB.
package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	keylio "github.com/Lymore01/keylio"
)

// Config customizes the adapter.
type Config struct {
	// Models lists the logical models the adapter serves, in addition to
	// the defaults (user, session). Operations on anything else fail with
	// MODEL_NOT_FOUND.
	Models []string

	// Transactions enables session-backed multi-document transactions.
	// Requires a replica-set deployment.
	Transactions bool

	// GenerateID supplies application-issued document ids. When set, id
	// values are passed through untouched instead of being coerced to
	// ObjectID.
	GenerateID func() string
}

// Adapter is a document-dialect adapter over a *mongo.Database handle.
type Adapter struct {
	db      *mongo.Database
	models  map[string]struct{}
	txOK    bool
	genID   func() string
	sessCtx mongo.SessionContext
}

var _ keylio.Adapter = (*Adapter)(nil)
var _ keylio.Transactor = (*Adapter)(nil)

// New builds an adapter bound to db.
func New(db *mongo.Database, cfg *Config) *Adapter {
	models := map[string]struct{}{
		keylio.ModelUser:    {},
		keylio.ModelSession: {},
	}
	a := &Adapter{db: db, models: models}
	if cfg != nil {
		for _, m := range cfg.Models {
			models[m] = struct{}{}
		}
		a.txOK = cfg.Transactions
		a.genID = cfg.GenerateID
	}
	return a
}

func (a *Adapter) collection(model string) (*mongo.Collection, error) {
	if _, ok := a.models[model]; !ok {
		return nil, keylio.Errorf(keylio.CodeModelNotFound,
			"Model %s does not exist in the database. Register it in the adapter's model list.", model)
	}
	return a.db.Collection(model), nil
}

// opCtx substitutes the transaction-bound context when this adapter is
// scoped to one.
func (a *Adapter) opCtx(ctx context.Context) context.Context {
	if a.sessCtx != nil {
		return a.sessCtx
	}
	return ctx
}

func (a *Adapter) Create(ctx context.Context, model string, data keylio.Record) (keylio.Record, error) {
	coll, err := a.collection(model)
	if err != nil {
		return nil, err
	}
	doc, err := a.toDocument(data)
	if err != nil {
		return nil, err
	}
	res, err := coll.InsertOne(a.opCtx(ctx), doc)
	if err != nil {
		return nil, err
	}
	out := make(keylio.Record, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["id"] = idToString(res.InsertedID)
	return out, nil
}

func (a *Adapter) FindOne(ctx context.Context, model string, where []keylio.Where, fields ...string) (keylio.Record, error) {
	coll, err := a.collection(model)
	if err != nil {
		return nil, err
	}
	clause, err := a.convertWhere(where)
	if err != nil {
		return nil, err
	}
	opts := options.FindOne()
	if len(fields) > 0 {
		projection := bson.M{}
		for _, f := range fields {
			projection[fieldName(f)] = 1
		}
		opts = opts.SetProjection(projection)
	}
	var doc bson.M
	if err := coll.FindOne(a.opCtx(ctx), clause, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return a.fromDocument(doc), nil
}

func (a *Adapter) FindMany(ctx context.Context, model string, where []keylio.Where, qopts *keylio.QueryOptions) ([]keylio.Record, error) {
	coll, err := a.collection(model)
	if err != nil {
		return nil, err
	}
	clause, err := a.convertWhere(where)
	if err != nil {
		return nil, err
	}

	// No implicit read cap: document reads return whatever the caller's
	// limit allows.
	opts := options.Find()
	if qopts != nil {
		if qopts.Limit > 0 {
			opts = opts.SetLimit(int64(qopts.Limit))
		}
		if qopts.Offset > 0 {
			opts = opts.SetSkip(int64(qopts.Offset))
		}
		if qopts.SortBy != nil && qopts.SortBy.Field != "" {
			dir := 1
			if qopts.SortBy.Direction == "desc" {
				dir = -1
			}
			opts = opts.SetSort(bson.D{{Key: fieldName(qopts.SortBy.Field), Value: dir}})
		}
	}

	cursor, err := coll.Find(a.opCtx(ctx), clause, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []keylio.Record
	for cursor.Next(a.opCtx(ctx)) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, a.fromDocument(doc))
	}
	return out, cursor.Err()
}

func (a *Adapter) Update(ctx context.Context, model string, where []keylio.Where, update keylio.Record) (keylio.Record, error) {
	coll, err := a.collection(model)
	if err != nil {
		return nil, err
	}
	clause, err := a.convertWhere(where)
	if err != nil {
		return nil, err
	}
	doc, err := a.toDocument(update)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated bson.M
	if err := coll.FindOneAndUpdate(a.opCtx(ctx), clause, bson.M{"$set": doc}, opts).Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return a.fromDocument(updated), nil
}

func (a *Adapter) UpdateMany(ctx context.Context, model string, where []keylio.Where, update keylio.Record) (int64, error) {
	coll, err := a.collection(model)
	if err != nil {
		return 0, err
	}
	clause, err := a.convertWhere(where)
	if err != nil {
		return 0, err
	}
	doc, err := a.toDocument(update)
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateMany(a.opCtx(ctx), clause, bson.M{"$set": doc})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Delete removes the single document matching where. A zero-match delete
// succeeds: deletions are idempotent.
func (a *Adapter) Delete(ctx context.Context, model string, where []keylio.Where) error {
	coll, err := a.collection(model)
	if err != nil {
		return err
	}
	clause, err := a.convertWhere(where)
	if err != nil {
		return err
	}
	_, err = coll.DeleteOne(a.opCtx(ctx), clause)
	return err
}

func (a *Adapter) DeleteMany(ctx context.Context, model string, where []keylio.Where) (int64, error) {
	coll, err := a.collection(model)
	if err != nil {
		return 0, err
	}
	clause, err := a.convertWhere(where)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(a.opCtx(ctx), clause)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (a *Adapter) Count(ctx context.Context, model string, where []keylio.Where) (int64, error) {
	coll, err := a.collection(model)
	if err != nil {
		return 0, err
	}
	clause, err := a.convertWhere(where)
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(a.opCtx(ctx), clause)
}

// Transaction runs fn against an adapter scoped to a mongo session. When
// transactions are not enabled the callback runs against the plain adapter.
func (a *Adapter) Transaction(ctx context.Context, fn func(tx keylio.Adapter) error) error {
	if !a.txOK {
		return fn(a)
	}
	session, err := a.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		scoped := &Adapter{
			db:      a.db,
			models:  a.models,
			txOK:    a.txOK,
			genID:   a.genID,
			sessCtx: sc,
		}
		return nil, fn(scoped)
	})
	return err
}

// toDocument prepares a record for storage: the logical id field becomes
// _id with the same coercion rules the query translation applies.
func (a *Adapter) toDocument(rec keylio.Record) (bson.M, error) {
	doc := make(bson.M, len(rec))
	for k, v := range rec {
		field := fieldName(k)
		if field == "_id" {
			serialized, err := a.serializeID(field, v)
			if err != nil {
				return nil, err
			}
			doc[field] = serialized
			continue
		}
		doc[field] = v
	}
	return doc, nil
}

// fromDocument maps a stored document back into the wire contract: _id
// becomes id, ObjectIDs become hex strings.
func (a *Adapter) fromDocument(doc bson.M) keylio.Record {
	out := make(keylio.Record, len(doc))
	for k, v := range doc {
		if k == "_id" {
			out["id"] = idToString(v)
			continue
		}
		if t, ok := v.(primitive.DateTime); ok {
			out[k] = t.Time()
			continue
		}
		out[k] = v
	}
	return out
}

func idToString(v any) any {
	if oid, ok := v.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return v
}

func fieldName(f string) string {
	if f == "id" {
		return "_id"
	}
	return f
}
