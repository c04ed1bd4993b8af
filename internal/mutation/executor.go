// Package mutation executes planned write trees against one transaction.
//
// Every node is resolved in the same order: pre-fetch when the root needs the
// old record, resolve the record id (insert or lookup), run each nested write
// (checks, prior-link removals, the write itself, recursion), then resync the
// node's scalar lists. Any error aborts the whole tree; Run rolls the
// transaction back so no partial write is ever committed.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"querycore/internal/condition"
	"querycore/internal/datamodel"
	"querycore/internal/logging"
	"querycore/internal/observability"
	"querycore/internal/planner"
	"querycore/internal/queryerr"
	"querycore/internal/statement"
	"querycore/internal/writeplan"
)

const tracerName = "querycore/mutation"

// Tx is the transactional connection a write runs on.
type Tx interface {
	Query(ctx context.Context, sel statement.Select) ([]statement.Row, error)
	Exec(ctx context.Context, st statement.Statement) (statement.ExecResult, error)
}

// Transaction is a Tx that can be finalized.
type Transaction interface {
	Tx
	Commit() error
	Rollback() error
}

// Beginner opens transactions.
type Beginner interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IdentifierKind tags the shape of a write result.
type IdentifierKind string

const (
	IdentifierID     IdentifierKind = "id"
	IdentifierCount  IdentifierKind = "count"
	IdentifierRecord IdentifierKind = "record"
	IdentifierNone   IdentifierKind = "none"
)

// Identifier is the value a root write reports back.
type Identifier struct {
	Kind   IdentifierKind
	ID     any
	Count  int64
	Record statement.Row
}

// Result is the outcome of one root write.
type Result struct {
	Kind       writeplan.Kind
	Model      string
	Identifier Identifier
}

// Executor runs root writes for one schema. It holds no per-request state and
// is safe for concurrent use; each call brings its own transaction.
type Executor struct {
	schema *datamodel.Schema
}

// NewExecutor returns an executor for schema.
func NewExecutor(schema *datamodel.Schema) *Executor {
	return &Executor{schema: schema}
}

// Run executes root inside a fresh transaction from db, committing on success
// and rolling back on any error.
func (e *Executor) Run(ctx context.Context, db Beginner, root writeplan.RootWrite) (res Result, err error) {
	metrics := observability.MetricsFromContext(ctx)
	metrics.IncrementActiveWrites(ctx)
	start := time.Now()
	defer func() {
		metrics.DecrementActiveWrites(ctx)
		metrics.RecordWrite(ctx, time.Since(start), string(root.Kind), string(queryerr.KindOf(err)))
	}()

	tx, err := db.Begin(ctx)
	if err != nil {
		return Result{}, queryerr.Connector(fmt.Errorf("begin transaction: %w", err))
	}
	res, err = e.Execute(ctx, tx, root)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.FromContext(ctx).Error("rollback failed", slog.String("error", rbErr.Error()))
		}
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, queryerr.Connector(fmt.Errorf("commit transaction: %w", err))
	}
	return res, nil
}

// Execute runs root on tx. The caller owns the transaction; on error it must
// roll back.
func (e *Executor) Execute(ctx context.Context, tx Tx, root writeplan.RootWrite) (res Result, err error) {
	modelName := ""
	if root.Model != nil {
		modelName = root.Model.Name
	}
	ctx, span := observability.StartSpan(ctx, tracerName, "mutation."+string(root.Kind),
		attribute.String("querycore.model", modelName),
	)
	defer func() { observability.FinishSpan(span, err, string(queryerr.KindOf(err))) }()

	logger := logging.FromContext(ctx).WithFields(
		slog.String("operation", string(root.Kind)),
		slog.String("model", modelName),
	)
	r := &run{schema: e.schema, tx: tx, metrics: observability.MetricsFromContext(ctx), logger: logger}

	res = Result{Kind: root.Kind, Model: modelName}
	switch root.Kind {
	case writeplan.KindCreate:
		id, err := r.create(ctx, root.Create)
		if err != nil {
			return Result{}, err
		}
		res.Identifier = Identifier{Kind: IdentifierID, ID: id}
	case writeplan.KindUpdate:
		id, err := r.lookupID(ctx, root.Model, *root.Update.Where)
		if err != nil {
			return Result{}, err
		}
		if id, err = r.update(ctx, root.Update, id); err != nil {
			return Result{}, err
		}
		res.Identifier = Identifier{Kind: IdentifierID, ID: id}
	case writeplan.KindUpsert:
		id, err := r.upsert(ctx, root.Upsert)
		if err != nil {
			return Result{}, err
		}
		res.Identifier = Identifier{Kind: IdentifierID, ID: id}
	case writeplan.KindDelete:
		record, err := r.deleteOne(ctx, root.Delete)
		if err != nil {
			return Result{}, err
		}
		res.Identifier = Identifier{Kind: IdentifierRecord, Record: record}
	case writeplan.KindUpdateMany:
		n, err := r.updateMany(ctx, root.UpdateMany)
		if err != nil {
			return Result{}, err
		}
		res.Identifier = Identifier{Kind: IdentifierCount, Count: n}
	case writeplan.KindDeleteMany:
		n, err := r.deleteMany(ctx, root.DeleteMany)
		if err != nil {
			return Result{}, err
		}
		res.Identifier = Identifier{Kind: IdentifierCount, Count: n}
	case writeplan.KindReset:
		if err := r.reset(ctx); err != nil {
			return Result{}, err
		}
		res.Identifier = Identifier{Kind: IdentifierNone}
	default:
		return Result{}, queryerr.Validation("unknown write kind %q", root.Kind)
	}
	logger.Debug("write executed", slog.Int("statements", r.statements))
	return res, nil
}

// run carries the state of one Execute call.
type run struct {
	schema     *datamodel.Schema
	tx         Tx
	metrics    *observability.QueryMetrics
	logger     *logging.Logger
	statements int
}

func (r *run) query(ctx context.Context, sel statement.Select) ([]statement.Row, error) {
	r.statements++
	r.metrics.RecordStatement(ctx, "select")
	rows, err := r.tx.Query(ctx, sel)
	if err != nil {
		return nil, wrapConnector(err)
	}
	return rows, nil
}

func (r *run) exec(ctx context.Context, st statement.Statement) (statement.ExecResult, error) {
	r.statements++
	r.metrics.RecordStatement(ctx, statementType(st))
	r.logger.Debug("statement", slog.String("statement", st.Describe()))
	res, err := r.tx.Exec(ctx, st)
	if err != nil {
		return statement.ExecResult{}, wrapConnector(err)
	}
	return res, nil
}

func statementType(st statement.Statement) string {
	switch st.(type) {
	case statement.Insert:
		return "insert"
	case statement.Update:
		return "update"
	case statement.Delete:
		return "delete"
	case statement.InsertLink:
		return "insert_link"
	case statement.DeleteLinks, *statement.DeleteLinks:
		return "delete_links"
	default:
		return "other"
	}
}

// wrapConnector passes typed errors through and tags anything else as a
// connector error.
func wrapConnector(err error) error {
	var qe *queryerr.Error
	if errors.As(err, &qe) {
		return err
	}
	return queryerr.Connector(err)
}

// check runs a relation check; any returned row fails the write.
func (r *run) check(ctx context.Context, c statement.Check) error {
	rows, err := r.query(ctx, c.Query)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		r.metrics.RecordCheckFailure(ctx, c.Relation)
		return queryerr.RelationViolation(c.Relation, c.ModelA, c.ModelB)
	}
	return nil
}

// lookupID resolves a finder to the id of the single record it matches.
func (r *run) lookupID(ctx context.Context, model *datamodel.Model, where datamodel.RecordFinder) (any, error) {
	row, err := r.findOne(ctx, model, where, []string{model.IDField().DBName()})
	if err != nil {
		return nil, err
	}
	return row[model.IDField().DBName()], nil
}

// findOne reads columns of the record matched by where, failing with
// RecordNotFound when there is none.
func (r *run) findOne(ctx context.Context, model *datamodel.Model, where datamodel.RecordFinder, columns []string) (statement.Row, error) {
	row, found, err := r.findOptional(ctx, model, where, columns)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, queryerr.RecordNotFound(model.Name, where.Field.Name, where.Value)
	}
	return row, nil
}

func (r *run) findOptional(ctx context.Context, model *datamodel.Model, where datamodel.RecordFinder, columns []string) (statement.Row, bool, error) {
	table := model.DBName()
	limit := 1
	rows, err := r.query(ctx, statement.Select{
		From:    condition.Table{Name: table},
		Columns: columns,
		Where:   statement.IDEquals(table, where.Field.DBName(), where.Value),
		Limit:   &limit,
	})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// selectIDs returns the ids of model records matching cond.
func (r *run) selectIDs(ctx context.Context, model *datamodel.Model, cond condition.Tree) ([]any, error) {
	table := model.DBName()
	idCol := model.IDField().DBName()
	rows, err := r.query(ctx, statement.Select{
		From:    condition.Table{Name: table},
		Columns: []string{idCol},
		Where:   cond,
		OrderBy: []statement.Order{{Column: condition.Col(table, idCol)}},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[idCol]
	}
	return ids, nil
}

func (r *run) create(ctx context.Context, node *writeplan.CreateNode) (any, error) {
	model := node.Model
	columns := make([]string, len(node.Args))
	values := make([]any, len(node.Args))
	for i, a := range node.Args {
		columns[i] = a.Field.DBName()
		values[i] = a.Value
	}
	insert := statement.Insert{Table: model.DBName(), Columns: columns, Rows: [][]any{values}}
	id, explicit := node.IDArg()
	if !explicit {
		insert.Returning = model.IDField().DBName()
	}
	res, err := r.exec(ctx, insert)
	if err != nil {
		return nil, err
	}
	if !explicit {
		id = res.InsertID
	}
	if id == nil {
		return nil, queryerr.Connector(fmt.Errorf("insert into %s returned no id", model.DBName()))
	}

	if err := r.nested(ctx, id, node.Nested); err != nil {
		return nil, err
	}
	if err := r.syncLists(ctx, model, []any{id}, node.Lists); err != nil {
		return nil, err
	}
	return id, nil
}

// update applies node to the record with id and returns its id afterwards,
// which differs when the update assigns a new id.
func (r *run) update(ctx context.Context, node *writeplan.UpdateNode, id any) (any, error) {
	model := node.Model
	newID := id
	if len(node.Args) > 0 {
		set := make([]statement.Assignment, len(node.Args))
		for i, a := range node.Args {
			set[i] = statement.Assignment{Column: a.Field.DBName(), Value: a.Value}
			if a.Field.IsID {
				newID = a.Value
			}
		}
		table := model.DBName()
		if _, err := r.exec(ctx, statement.Update{
			Table: table,
			Set:   set,
			Where: statement.IDEquals(table, model.IDField().DBName(), id),
		}); err != nil {
			return nil, err
		}
	}
	if err := r.nested(ctx, newID, node.Nested); err != nil {
		return nil, err
	}
	if err := r.syncLists(ctx, model, []any{newID}, node.Lists); err != nil {
		return nil, err
	}
	return newID, nil
}

func (r *run) upsert(ctx context.Context, node *writeplan.UpsertNode) (any, error) {
	row, found, err := r.findOptional(ctx, node.Model, *node.Where, []string{node.Model.IDField().DBName()})
	if err != nil {
		return nil, err
	}
	if found {
		return r.update(ctx, node.Update, row[node.Model.IDField().DBName()])
	}
	return r.create(ctx, node.Create)
}

func (r *run) deleteOne(ctx context.Context, node *writeplan.DeleteNode) (statement.Row, error) {
	record, err := r.findOne(ctx, node.Model, *node.Where, planner.Columns(node.Model))
	if err != nil {
		return nil, err
	}
	id := record[node.Model.IDField().DBName()]
	if _, err := r.deleteRecords(ctx, node.Model, []any{id}); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *run) updateMany(ctx context.Context, node *writeplan.UpdateManyNode) (int64, error) {
	cond, err := condition.Compile(r.schema, node.Model, node.Filter, node.Model.DBName())
	if err != nil {
		return 0, err
	}
	ids, err := r.selectIDs(ctx, node.Model, cond)
	if err != nil {
		return 0, err
	}
	if err := r.updateIDs(ctx, node.Model, ids, node.Args, node.Lists); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// updateIDs applies the same assignments and list writes to every id.
func (r *run) updateIDs(ctx context.Context, model *datamodel.Model, ids []any, args []writeplan.FieldValue, lists []writeplan.ListWrite) error {
	if len(ids) == 0 {
		return nil
	}
	if len(args) > 0 {
		set := make([]statement.Assignment, len(args))
		for i, a := range args {
			set[i] = statement.Assignment{Column: a.Field.DBName(), Value: a.Value}
		}
		table := model.DBName()
		if _, err := r.exec(ctx, statement.Update{
			Table: table,
			Set:   set,
			Where: statement.IDIn(table, model.IDField().DBName(), ids),
		}); err != nil {
			return err
		}
	}
	return r.syncLists(ctx, model, ids, lists)
}

func (r *run) deleteMany(ctx context.Context, node *writeplan.DeleteManyNode) (int64, error) {
	cond, err := condition.Compile(r.schema, node.Model, node.Filter, node.Model.DBName())
	if err != nil {
		return 0, err
	}
	ids, err := r.selectIDs(ctx, node.Model, cond)
	if err != nil {
		return 0, err
	}
	return r.deleteRecords(ctx, node.Model, ids)
}

// reset removes every link, list value and record of the schema.
func (r *run) reset(ctx context.Context) error {
	for _, rel := range r.schema.Relations() {
		if _, err := r.exec(ctx, statement.DeleteLinks{Table: rel.TableName(), Where: condition.True}); err != nil {
			return err
		}
	}
	for _, model := range r.schema.Models() {
		for _, f := range model.ScalarListFields() {
			if _, err := r.exec(ctx, statement.Delete{Table: model.ListTable(f), Where: condition.True}); err != nil {
				return err
			}
		}
	}
	for _, model := range r.schema.Models() {
		if _, err := r.exec(ctx, statement.Delete{Table: model.DBName(), Where: condition.True}); err != nil {
			return err
		}
	}
	return nil
}
