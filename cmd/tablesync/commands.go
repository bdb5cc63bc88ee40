package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"

	"tablesync/internal/api"
	"tablesync/internal/diff"
	"tablesync/internal/executor"
	"tablesync/internal/reconcile"
)

var ErrFailedRows = errors.New("some rows failed")

type ServeCmd struct {
	Port string `help:"HTTP port (overrides port)"`
}

func (cmd *ServeCmd) Run(g *Globals) error {
	a, err := open(g)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Port
	if cmd.Port != "" {
		port = cmd.Port
	}
	color.Green("Starting tablesync on :%s", port)
	return api.RunServer(":"+port, api.NewServer(a.syncer))
}

// FileFlags — источник строк и набор операций, общие для plan и apply.
type FileFlags struct {
	Table    string `help:"Target table" required:"" short:"t"`
	File     string `help:"CSV file; the first record is the mapping header" required:"" short:"f" type:"existingfile"`
	Comma    string `help:"Field delimiter" default:","`
	NoInsert bool   `help:"Do not insert new rows"`
	NoUpdate bool   `help:"Do not update changed rows"`
	NoDelete bool   `help:"Do not delete rows missing from the file"`
}

func (f FileFlags) request() (reconcile.Request, error) {
	file, err := os.Open(f.File)
	if err != nil {
		return reconcile.Request{}, err
	}
	defer file.Close()

	var comma rune
	if f.Comma != "" {
		comma = []rune(f.Comma)[0]
	}
	header, rows, err := reconcile.ReadCSV(file, comma)
	if err != nil {
		return reconcile.Request{}, fmt.Errorf("%s: %w", f.File, err)
	}
	return reconcile.Request{
		Table:  f.Table,
		Header: header,
		Rows:   rows,
		Ops:    diff.Options{Insert: !f.NoInsert, Update: !f.NoUpdate, Delete: !f.NoDelete},
	}, nil
}

type PlanCmd struct {
	FileFlags `embed:""`
	Verbose   bool `help:"Print every statement" short:"v"`
}

func (cmd *PlanCmd) Run(g *Globals) error {
	req, err := cmd.request()
	if err != nil {
		return err
	}
	a, err := open(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	plan, err := a.syncer.Plan(ctx, req)
	if err != nil {
		return err
	}
	printPlan(plan)
	results := make([]executor.Result, 0, len(plan.Executors))
	for _, ex := range plan.Executors {
		results = append(results, ex.Result())
	}
	printResults(results, cmd.Verbose)
	return nil
}

type ApplyCmd struct {
	FileFlags `embed:""`
	Execute   bool `help:"Execute statements (false renders only)" default:"true" negatable:""`
	Commit    bool `help:"Commit the transaction (false rolls back)" default:"true" negatable:""`
	Verbose   bool `help:"Print every statement" short:"v"`
}

func (cmd *ApplyCmd) Run(g *Globals) error {
	req, err := cmd.request()
	if err != nil {
		return err
	}
	a, err := open(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	plan, rep, err := a.syncer.Apply(ctx, req, cmd.Execute, cmd.Commit)
	if err != nil {
		return err
	}
	printPlan(plan)
	printResults(rep.Results, cmd.Verbose)
	printReport(rep)
	if rep.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrFailedRows, rep.Failed, rep.Failed+rep.Succeeded)
	}
	return nil
}

func printPlan(p *reconcile.Plan) {
	fmt.Printf("table %s: %d incoming, %d current\n", p.Entity.Table, p.Incoming, p.Current)
	color.Green("  insert: %d", len(p.Diff.Inserts))
	color.Yellow("  update: %d", len(p.Diff.Updates))
	color.Red("  delete: %d", len(p.Diff.Deletes))
	if p.Rejected > 0 {
		color.Red("  rejected rows: %d", p.Rejected)
	}
}

func printResults(results []executor.Result, verbose bool) {
	for _, r := range results {
		where := "line " + fmt.Sprint(r.Line)
		if r.Operation == executor.OpDelete {
			where = "delete"
		}
		switch {
		case !r.Success:
			color.Red("✗ %s %s: %s", where, r.Operation, r.Error)
		case verbose:
			fmt.Printf("✓ %s %s (%d rows)\n  %s\n", where, r.Operation, r.RowCount, strings.ReplaceAll(r.Query, "\n", "\n  "))
		}
	}
}

func printReport(rep *executor.Report) {
	fmt.Printf("run %s: %d passes, %d batches\n", rep.RunID, rep.Passes, rep.Batches)
	if rep.Note != "" {
		color.Yellow("%s", rep.Note)
	}
	if rep.Failed == 0 {
		color.Green("✓ %d succeeded", rep.Succeeded)
		return
	}
	color.Red("%d succeeded, %d failed", rep.Succeeded, rep.Failed)
}
