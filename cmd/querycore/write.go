package main

import (
	"context"

	"github.com/spf13/cobra"

	"querycore/internal/app"
	"querycore/internal/mutation"
	"querycore/internal/statement"
	"querycore/internal/writeplan"
)

type writeFlags struct {
	model string
	op    string
	where string
	data  string
}

func (w *writeFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&w.model, "model", "", "model to write (not needed for reset)")
	f.StringVar(&w.op, "op", "", "create, update, upsert, delete, updateMany, deleteMany or reset")
	f.StringVar(&w.where, "where", "", "selector or filter document: inline JSON/YAML, a file, or - for stdin")
	f.StringVar(&w.data, "data", "", "input document; for upsert an object with create and update")
	_ = cmd.MarkFlagRequired("op")
}

func (w *writeFlags) request(cmd *cobra.Command) (app.WriteRequest, error) {
	where, err := readDocument(cmd, w.where)
	if err != nil {
		return app.WriteRequest{}, err
	}
	data, err := readDocument(cmd, w.data)
	if err != nil {
		return app.WriteRequest{}, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return app.WriteRequest{Model: w.model, Op: writeplan.Kind(w.op), Where: where, Data: data}, nil
}

type writeOutput struct {
	Kind   string        `json:"kind"`
	Model  string        `json:"model,omitempty"`
	Result string        `json:"result"`
	ID     any           `json:"id,omitempty"`
	Count  *int64        `json:"count,omitempty"`
	Record statement.Row `json:"record,omitempty"`
}

func newWriteOutput(res mutation.Result) writeOutput {
	out := writeOutput{Kind: string(res.Kind), Model: res.Model, Result: string(res.Identifier.Kind)}
	switch res.Identifier.Kind {
	case mutation.IdentifierID:
		out.ID = res.Identifier.ID
	case mutation.IdentifierCount:
		count := res.Identifier.Count
		out.Count = &count
	case mutation.IdentifierRecord:
		out.Record = res.Identifier.Record
	}
	return out
}

func newWriteCmd() *cobra.Command {
	var w writeFlags
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Run one nested write in a transaction",
		Example: `  querycore write --model User --op create --data '{"email": "ada@example.com", "posts": {"create": {"title": "Hello"}}}'
  querycore write --model Post --op deleteMany --where '{"title": {"startsWith": "Draft"}}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := w.request(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Write(ctx, req)
				if err != nil {
					return err
				}
				return printResult(cmd, newWriteOutput(res))
			})
		},
	}
	w.register(cmd)
	return cmd
}

func newPlanCmd() *cobra.Command {
	var w writeFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the planned operations of a write without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := w.request(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				root, err := a.Plan(req)
				if err != nil {
					return err
				}
				node, err := a.Describe(root)
				if err != nil {
					return err
				}
				return printResult(cmd, node)
			})
		},
	}
	w.register(cmd)
	return cmd
}
