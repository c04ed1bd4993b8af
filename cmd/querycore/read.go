package main

import (
	"context"

	"github.com/spf13/cobra"

	"querycore/internal/app"
)

func newReadCmd() *cobra.Command {
	var (
		req   app.ReadRequest
		where string
		skip  int
		first int
		last  int
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read one page of records",
		Example: `  # First ten posts, newest title first
  querycore read --model Post --first 10 --order-by title:desc

  # The page after a cursor from an earlier read
  querycore read --model Post --first 10 --after eyJ2IjoxLCJtIjoiUG9zdCIsImlkIjoiMTAifQ`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, where)
			if err != nil {
				return err
			}
			req.Where = doc
			if cmd.Flags().Changed("skip") {
				req.Skip = &skip
			}
			if cmd.Flags().Changed("first") {
				req.First = &first
			}
			if cmd.Flags().Changed("last") {
				req.Last = &last
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				page, err := a.Read(ctx, req)
				if err != nil {
					return err
				}
				return printResult(cmd, page)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Model, "model", "", "model to read")
	f.StringVar(&where, "where", "", "filter document: inline JSON/YAML, a file, or - for stdin")
	f.StringVar(&req.OrderBy, "order-by", "", "order field, optionally suffixed with :asc or :desc")
	f.IntVar(&skip, "skip", 0, "records to skip")
	f.IntVar(&first, "first", 0, "page size counted from the start")
	f.IntVar(&last, "last", 0, "page size counted from the end")
	f.StringVar(&req.After, "after", "", "cursor to read after")
	f.StringVar(&req.Before, "before", "", "cursor to read before")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
