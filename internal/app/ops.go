package app

import (
	"context"
	"strings"

	"querycore/internal/cursor"
	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/mutation"
	"querycore/internal/planner"
	"querycore/internal/queryerr"
	"querycore/internal/statement"
	"querycore/internal/writeplan"
)

// ReadRequest is a list read as the command line receives it. OrderBy is
// "field" or "field:asc|desc"; After and Before are cursors issued by an
// earlier read of the same model.
type ReadRequest struct {
	Model   string
	Where   map[string]any
	OrderBy string
	Skip    *int
	First   *int
	Last    *int
	After   string
	Before  string
}

// Record is one returned row and the cursor addressing it.
type Record struct {
	Cursor string        `json:"cursor"`
	Data   statement.Row `json:"data"`
}

// ReadResult is one page of records.
type ReadResult struct {
	Records []Record `json:"records"`
	HasMore bool     `json:"hasMore"`
}

// Read runs one paginated list read.
func (a *App) Read(ctx context.Context, req ReadRequest) (ReadResult, error) {
	if err := a.ready(); err != nil {
		return ReadResult{}, err
	}
	model, err := a.schema.Model(req.Model)
	if err != nil {
		return ReadResult{}, queryerr.Validation("%s", err.Error())
	}
	args, err := a.readArguments(model, req)
	if err != nil {
		return ReadResult{}, err
	}
	plan, err := planner.BuildRead(a.schema, model, args)
	if err != nil {
		return ReadResult{}, err
	}
	page, err := a.executor.Read(a.Context(ctx), plan)
	if err != nil {
		return ReadResult{}, err
	}

	idColumn := model.IDField().DBName()
	out := ReadResult{Records: make([]Record, len(page.Rows)), HasMore: page.HasMore}
	for i, row := range page.Rows {
		out.Records[i] = Record{Cursor: cursor.Encode(model.Name, row[idColumn]), Data: row}
	}
	return out, nil
}

func (a *App) readArguments(model *datamodel.Model, req ReadRequest) (filter.QueryArguments, error) {
	args := filter.QueryArguments{Skip: req.Skip, First: req.First, Last: req.Last}
	if req.Where != nil {
		f, err := filter.Parse(a.schema, model, req.Where)
		if err != nil {
			return args, err
		}
		args.Filter = f
	}
	if req.OrderBy != "" {
		name, dir, _ := strings.Cut(req.OrderBy, ":")
		field, err := model.ScalarField(strings.TrimSpace(name))
		if err != nil {
			return args, queryerr.Validation("%s", err.Error())
		}
		direction, err := filter.ParseDirection(dir)
		if err != nil {
			return args, err
		}
		args.OrderBy = &filter.OrderBy{Field: field, Direction: direction}
	}
	var err error
	if args.After, err = decodeCursor(model, req.After); err != nil {
		return args, err
	}
	if args.Before, err = decodeCursor(model, req.Before); err != nil {
		return args, err
	}
	return args, nil
}

func decodeCursor(model *datamodel.Model, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := cursor.Decode(model, raw)
	if err != nil {
		return nil, queryerr.Validation("%s", err.Error())
	}
	return id, nil
}

// WriteRequest is one root write. Where selects the record (update, upsert,
// delete) or the filtered set (updateMany, deleteMany). For upsert, Data holds
// "create" and "update" documents.
type WriteRequest struct {
	Model string
	Op    writeplan.Kind
	Where map[string]any
	Data  map[string]any
}

// Plan validates req and plans it without touching the database.
func (a *App) Plan(req WriteRequest) (writeplan.RootWrite, error) {
	if err := a.ready(); err != nil {
		return writeplan.RootWrite{}, err
	}
	if req.Op == writeplan.KindReset {
		return a.planner.PlanReset(), nil
	}
	model, err := a.schema.Model(req.Model)
	if err != nil {
		return writeplan.RootWrite{}, queryerr.Validation("%s", err.Error())
	}

	switch req.Op {
	case writeplan.KindCreate:
		return a.planner.PlanCreate(model, req.Data)
	case writeplan.KindUpdateMany:
		return a.planner.PlanUpdateMany(model, req.Where, req.Data)
	case writeplan.KindDeleteMany:
		return a.planner.PlanDeleteMany(model, req.Where)
	case writeplan.KindUpdate, writeplan.KindUpsert, writeplan.KindDelete:
	default:
		return writeplan.RootWrite{}, queryerr.Validation("unknown write operation %q", req.Op)
	}

	where, err := writeplan.Finder(model, req.Where)
	if err != nil {
		return writeplan.RootWrite{}, err
	}
	switch req.Op {
	case writeplan.KindUpdate:
		return a.planner.PlanUpdate(model, where, req.Data)
	case writeplan.KindDelete:
		return a.planner.PlanDelete(model, where)
	}
	create, err := subDocument(req.Data, "create")
	if err != nil {
		return writeplan.RootWrite{}, err
	}
	update, err := subDocument(req.Data, "update")
	if err != nil {
		return writeplan.RootWrite{}, err
	}
	return a.planner.PlanUpsert(model, where, create, update)
}

func subDocument(data map[string]any, key string) (map[string]any, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return map[string]any{}, nil
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, queryerr.Validation("upsert %s must be an object, got %T", key, v)
	}
	return doc, nil
}

// Write plans req and runs it in one transaction.
func (a *App) Write(ctx context.Context, req WriteRequest) (mutation.Result, error) {
	root, err := a.Plan(req)
	if err != nil {
		return mutation.Result{}, err
	}
	return a.mutator.Run(a.Context(ctx), a.executor, root)
}
