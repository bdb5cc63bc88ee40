// Package reconcile связывает компоненты в один прогон: заголовок и строки на входе,
// дифф с текущим содержимым таблицы и его применение на выходе.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"tablesync/internal/diff"
	"tablesync/internal/enrich"
	"tablesync/internal/executor"
	"tablesync/internal/mapping"
	"tablesync/internal/reference"
	"tablesync/internal/schema"
	"tablesync/internal/sqlgen"
)

// Request — один прогон синхронизации.
type Request struct {
	Table  string
	Header string
	Rows   [][]string
	// FirstLine — номер строки файла у Rows[0]; 0 означает 2 (первая строка — заголовок)
	FirstLine int
	Ops       diff.Options
}

// Plan — всё, что известно до исполнения.
type Plan struct {
	Entity    *mapping.Entity      `json:"entity"`
	Select    *sqlgen.Statement    `json:"select"`
	Incoming  int                  `json:"incoming"`
	Current   int                  `json:"current"`
	Diff      diff.Result          `json:"diff"`
	Rejected  int                  `json:"rejected"`
	Executors []*executor.Executor `json:"-"`
}

// Syncer держит долгоживущие зависимости; энричеры создаются заново на каждый запрос.
type Syncer struct {
	DB        *sql.DB
	Lookup    schema.Lookup
	Options   enrich.Options
	Renderer  *sqlgen.Renderer
	Binder    executor.Binder
	Catalog   *reference.Catalog
	Fetcher   executor.Fetcher
	Policy    executor.Policy
	BatchSize int
}

func (s *Syncer) substituter() executor.Substituter {
	if s.Catalog == nil {
		return nil
	}
	return s.Catalog
}

func (s *Syncer) namer() Namer {
	if s.Catalog == nil {
		return nil
	}
	return s.Catalog
}

// Entity — разбор и обогащение заголовка для таблицы.
func (s *Syncer) Entity(ctx context.Context, table, header string) (*mapping.Entity, error) {
	return enrich.Build(ctx, s.Lookup, s.Options, table, header)
}

// Plan строит дифф и исполнителей, ничего не меняя в базе. Ошибки маппинга и схемы
// возвращаются как есть; плохие строки становятся FAILED-исполнителями.
func (s *Syncer) Plan(ctx context.Context, req Request) (*Plan, error) {
	ent, err := s.Entity(ctx, req.Table, req.Header)
	if err != nil {
		return nil, err
	}
	if _, unique := compared(ent); len(unique) == 0 {
		return nil, sqlgen.ErrNoUniqueColumns
	}
	deriver, err := executor.NewDeriver(ent, s.Fetcher)
	if err != nil {
		return nil, err
	}
	sel, err := s.Renderer.Select(ent)
	if err != nil {
		return nil, err
	}
	current, err := ReadCurrent(ctx, s.DB, s.Binder, sel, ent, s.namer())
	if err != nil {
		return nil, err
	}

	first := req.FirstLine
	if first == 0 {
		first = 2
	}
	incoming, rejected := ReadIncoming(ctx, ent, req.Rows, first, deriver)

	ops := req.Ops
	ops.Carry = carry(ent)
	res := diff.Diff(incoming, current, ops)

	exs := executor.NewCreator(ent, s.Renderer, s.substituter()).CreateAll(res)
	for _, r := range rejected {
		op := executor.OpInsert
		if _, ok := current.Get(current.Key(r.Record.Values)); ok {
			op = executor.OpUpdate
		}
		exs = append(exs, executor.NewFailed(r.Record.Line, op, ent.Table, r.Err))
	}

	return &Plan{
		Entity:    ent,
		Select:    sel,
		Incoming:  incoming.Len(),
		Current:   current.Len(),
		Diff:      res,
		Rejected:  len(rejected),
		Executors: exs,
	}, nil
}

// Apply — Plan и исполнение. execute=false даёт отчёт без обращения к таблице на запись.
func (s *Syncer) Apply(ctx context.Context, req Request, execute, commit bool) (*Plan, *executor.Report, error) {
	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	rep, err := executor.NewService(s.DB, s.Policy, s.BatchSize).Execute(ctx, plan.Executors, execute, commit)
	if err != nil {
		return plan, nil, fmt.Errorf("apply %s: %w", req.Table, err)
	}
	return plan, rep, nil
}
