package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"tablesync/internal/sqlgen"
)

// Binder переводит текст с :name в синтаксис драйвера и раскладывает аргументы.
type Binder interface {
	Bind(query string, names []string, values map[string]any) (string, []any, error)
}

// NamedBinder — для драйверов, понимающих :name сами (sqlite3): аргументы через sql.Named.
type NamedBinder struct{}

func (NamedBinder) Bind(query string, names []string, values map[string]any) (string, []any, error) {
	args := make([]any, 0, len(names))
	for _, n := range names {
		v, ok := values[n]
		if !ok {
			return "", nil, fmt.Errorf("%w %q", ErrMissingParam, n)
		}
		args = append(args, sql.Named(n, v))
	}
	return query, args, nil
}

// Backend исполняет план одного исполнителя внутри транзакции.
type Backend interface {
	Run(ctx context.Context, tx *sql.Tx, ex *Executor) (int64, error)
}

// Policy — выбор бэкенда по таблице; по умолчанию Default.
type Policy struct {
	Default Backend
	Tables  map[string]Backend
}

func (p Policy) For(table string) Backend {
	if b, ok := p.Tables[table]; ok {
		return b
	}
	return p.Default
}

// SQLBackend — прямое исполнение SQL. Каждый оператор обязан затронуть ровно одну строку.
// Translate, если задан, переводит ошибки драйвера в понятные пользователю.
type SQLBackend struct {
	Binder    Binder
	Timeout   time.Duration
	Translate func(error) error
}

func (b *SQLBackend) stmtContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.Timeout)
}

func (b *SQLBackend) Run(ctx context.Context, tx *sql.Tx, ex *Executor) (int64, error) {
	var (
		returned any
		primary  int64
	)
	for i, st := range ex.Plan.Statements() {
		values := ex.Params
		if st.UsesReturnedID {
			values = make(map[string]any, len(ex.Params)+1)
			for k, v := range ex.Params {
				values[k] = v
			}
			values[sqlgen.ReturnedIDParam] = returned
		}
		query, args, err := b.Binder.Bind(st.SQL, st.Params, values)
		if err != nil {
			return 0, &ExecutionError{Table: st.Table, SQL: st.SQL, Err: err}
		}

		n, id, err := b.exec(ctx, tx, st, query, args)
		if err != nil {
			if b.Translate != nil {
				err = b.Translate(err)
			}
			return 0, &ExecutionError{Table: st.Table, SQL: st.SQL, Err: err}
		}
		if n != 1 {
			return 0, &ExecutionError{Table: st.Table, SQL: st.SQL, RowCount: n}
		}
		if st.Returning != "" {
			returned = id
		}
		if i == 0 {
			primary = n
		}
	}
	return primary, nil
}

func (b *SQLBackend) exec(ctx context.Context, tx *sql.Tx, st *sqlgen.Statement, query string, args []any) (int64, any, error) {
	sctx, cancel := b.stmtContext(ctx)
	defer cancel()
	if st.Returning == "" {
		res, err := tx.ExecContext(sctx, query, args...)
		if err != nil {
			return 0, nil, err
		}
		n, err := res.RowsAffected()
		return n, nil, err
	}
	rows, err := tx.QueryContext(sctx, query, args...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	var (
		n  int64
		id any
	)
	for rows.Next() {
		n++
		if n == 1 {
			if err := rows.Scan(&id); err != nil {
				return 0, nil, err
			}
		}
	}
	return n, id, rows.Err()
}

// Report — итог одного прогона.
type Report struct {
	RunID     string   `json:"runId"`
	Passes    int      `json:"passes"`
	Batches   int      `json:"batches"`
	Executed  bool     `json:"executed"`
	Committed bool     `json:"committed"`
	Note      string   `json:"note,omitempty"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// savepointError — сбой самой транзакции, а не оператора: прогон прерывается.
type savepointError struct{ err error }

func (e *savepointError) Error() string { return "savepoint: " + e.err.Error() }
func (e *savepointError) Unwrap() error { return e.err }

// Service исполняет исполнителей в одной транзакции, строго последовательно.
type Service struct {
	db        *sql.DB
	policy    Policy
	batchSize int
}

func NewService(db *sql.DB, policy Policy, batchSize int) *Service {
	return &Service{db: db, policy: policy, batchSize: batchSize}
}

// Execute прогоняет PENDING-исполнителей. execute=false — ничего не исполняет:
// валидные исполнители считаются успешными с rowcount 0. Иначе проходы повторяются,
// пока проход даёт хотя бы один новый успех; оставшиеся становятся FAILED.
// Ошибка возвращается только при сбое транзакции.
func (s *Service) Execute(ctx context.Context, executors []*Executor, execute, commit bool) (*Report, error) {
	rep := &Report{RunID: ulid.Make().String(), Executed: execute}
	if !execute {
		for _, ex := range executors {
			if ex.Status == Pending {
				ex.Status, ex.RowCount, ex.Executed = Success, 0, false
			}
		}
		rep.Note = "dry run: statements were rendered but not executed, nothing was persisted"
		rep.finish(executors)
		return rep, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	var pending []*Executor
	for _, ex := range executors {
		if ex.Status == Pending {
			pending = append(pending, ex)
		}
	}

	sinceCommit := 0
	for len(pending) > 0 {
		rep.Passes++
		progress := 0
		var still []*Executor
		for _, ex := range pending {
			n, err := s.runOne(ctx, tx, ex)
			if err != nil {
				var spErr *savepointError
				if errors.As(err, &spErr) {
					return nil, err
				}
				ex.Err = err
				still = append(still, ex)
				continue
			}
			ex.Status, ex.RowCount, ex.Executed, ex.Err = Success, n, true, nil
			progress++
			sinceCommit++
			if commit && s.batchSize > 0 && sinceCommit >= s.batchSize {
				if err := tx.Commit(); err != nil {
					tx = nil
					return nil, fmt.Errorf("commit batch: %w", err)
				}
				if tx, err = s.db.BeginTx(ctx, nil); err != nil {
					return nil, fmt.Errorf("begin: %w", err)
				}
				sinceCommit = 0
				rep.Batches++
			}
		}
		log.Printf("sync %s: pass %d: %d succeeded, %d pending", rep.RunID, rep.Passes, progress, len(still))
		pending = still
		if progress == 0 {
			break
		}
	}
	for _, ex := range pending {
		ex.Status = Failed
	}

	if commit {
		err := tx.Commit()
		tx = nil
		if err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		rep.Committed = true
		rep.Batches++
	} else {
		rep.Note = "not committed: all changes were rolled back"
	}
	rep.finish(executors)
	return rep, nil
}

func (s *Service) runOne(ctx context.Context, tx *sql.Tx, ex *Executor) (int64, error) {
	backend := s.policy.For(ex.Table)
	if backend == nil {
		return 0, &ExecutionError{Table: ex.Table, Err: errors.New("no backend for table")}
	}
	sp := "sp_" + strings.ToLower(ulid.Make().String())
	if _, err := tx.ExecContext(ctx, "savepoint "+sp); err != nil {
		return 0, &savepointError{err}
	}
	n, err := backend.Run(ctx, tx, ex)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "rollback to savepoint "+sp); rbErr != nil {
			return 0, &savepointError{rbErr}
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "release savepoint "+sp); err != nil {
		return 0, &savepointError{err}
	}
	return n, nil
}

// finish: insert/update по номеру строки, delete в конце в исходном порядке
func (r *Report) finish(executors []*Executor) {
	ordered := append([]*Executor(nil), executors...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if (a.Operation == OpDelete) != (b.Operation == OpDelete) {
			return b.Operation == OpDelete
		}
		if a.Operation == OpDelete {
			return false
		}
		return a.Line < b.Line
	})
	r.Results = make([]Result, 0, len(ordered))
	for _, ex := range ordered {
		res := ex.Result()
		if res.Success {
			r.Succeeded++
		} else {
			r.Failed++
		}
		r.Results = append(r.Results, res)
	}
}
