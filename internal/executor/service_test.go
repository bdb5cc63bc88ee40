package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesync/internal/sqlgen"
)

const nodesDDL = `
create table nodes (
	id integer primary key,
	name text not null unique,
	parentid integer references nodes(id)
);
create table tags (
	id integer primary key,
	node_id integer not null references nodes(id),
	tag text not null
);`

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(nodesDDL)
	require.NoError(t, err)
	return db
}

func service(db *sql.DB, batch int) *Service {
	return NewService(db, Policy{Default: &SQLBackend{Binder: NamedBinder{}}}, batch)
}

func root(line int, name string) *Executor {
	return &Executor{
		Line: line, Operation: OpInsert, Table: "nodes", Status: Pending,
		Plan: &sqlgen.Plan{Primary: &sqlgen.Statement{
			Table: "nodes", SQL: `insert into nodes(name) select :name`, Params: []string{"name"},
		}},
		Params: map[string]any{"name": name},
	}
}

func child(line int, name, parent string) *Executor {
	return &Executor{
		Line: line, Operation: OpInsert, Table: "nodes", Status: Pending,
		Plan: &sqlgen.Plan{Primary: &sqlgen.Statement{
			Table:  "nodes",
			SQL:    `insert into nodes(name, parentid) select :name, p.id from nodes as p where p.name = :parent`,
			Params: []string{"name", "parent"},
		}},
		Params: map[string]any{"name": name, "parent": parent},
	}
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("select count(*) from "+table).Scan(&n))
	return n
}

func TestExecuteIndependentRowsTakeOnePass(t *testing.T) {
	db := openDB(t)
	exs := []*Executor{root(2, "a"), root(3, "b"), root(4, "c")}

	rep, err := service(db, 0).Execute(context.Background(), exs, true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Passes)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Zero(t, rep.Failed)
	assert.True(t, rep.Committed)
	assert.NotEmpty(t, rep.RunID)
	for _, r := range rep.Results {
		assert.True(t, r.Executed)
		assert.EqualValues(t, 1, r.RowCount)
	}
	assert.Equal(t, 3, count(t, db, "nodes"))
}

func TestExecuteChainResolvesInPasses(t *testing.T) {
	db := openDB(t)
	// обратный порядок: каждый проход добавляет одно звено
	exs := []*Executor{child(5, "d", "c"), child(4, "c", "b"), child(3, "b", "a"), root(2, "a")}

	rep, err := service(db, 0).Execute(context.Background(), exs, true, true)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Passes)
	assert.Equal(t, 4, rep.Succeeded)
	assert.Equal(t, []int{2, 3, 4, 5}, []int{rep.Results[0].Line, rep.Results[1].Line, rep.Results[2].Line, rep.Results[3].Line})

	var parent string
	require.NoError(t, db.QueryRow(`select p.name from nodes n join nodes p on n.parentid = p.id where n.name = 'd'`).Scan(&parent))
	assert.Equal(t, "c", parent)
}

func TestExecuteUnresolvableRowFails(t *testing.T) {
	db := openDB(t)
	exs := []*Executor{root(2, "a"), child(3, "orphan", "missing"), child(4, "b", "a")}

	rep, err := service(db, 0).Execute(context.Background(), exs, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Passes)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)

	failed := exs[1]
	assert.Equal(t, Failed, failed.Status)
	var execErr *ExecutionError
	require.ErrorAs(t, failed.Err, &execErr)
	assert.Zero(t, execErr.RowCount)
	assert.Equal(t, 2, count(t, db, "nodes"))
}

func TestExecuteConstraintViolationIsRolledBackToSavepoint(t *testing.T) {
	db := openDB(t)
	exs := []*Executor{root(2, "a"), root(3, "a"), root(4, "b")}

	rep, err := service(db, 0).Execute(context.Background(), exs, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, Failed, exs[1].Status)
	assert.Contains(t, exs[1].Err.Error(), "UNIQUE")
	assert.Equal(t, 2, count(t, db, "nodes"))
}

func TestExecuteDryRun(t *testing.T) {
	db := openDB(t)
	bad := failedExecutor(3, OpInsert, "nodes", &RowValueError{Line: 3, Header: "name", Err: fmt.Errorf("must be integer")})
	exs := []*Executor{root(2, "a"), bad}

	rep, err := service(db, 0).Execute(context.Background(), exs, false, true)
	require.NoError(t, err)
	assert.False(t, rep.Executed)
	assert.False(t, rep.Committed)
	assert.Zero(t, rep.Passes)
	assert.Contains(t, rep.Note, "dry run")
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.False(t, rep.Results[0].Executed)
	assert.Zero(t, rep.Results[0].RowCount)
	assert.Equal(t, Failed, bad.Status)
	assert.Zero(t, count(t, db, "nodes"))
}

func TestExecuteWithoutCommitRollsBack(t *testing.T) {
	db := openDB(t)
	rep, err := service(db, 0).Execute(context.Background(), []*Executor{root(2, "a")}, true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.False(t, rep.Committed)
	assert.Contains(t, rep.Note, "rolled back")
	assert.Zero(t, count(t, db, "nodes"))
}

func TestExecuteBatchCommits(t *testing.T) {
	db := openDB(t)
	exs := []*Executor{root(2, "a"), root(3, "b"), root(4, "c")}

	rep, err := service(db, 2).Execute(context.Background(), exs, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Batches)
	assert.Equal(t, 3, count(t, db, "nodes"))
}

type countingBackend struct{ calls []string }

func (b *countingBackend) Run(_ context.Context, _ *sql.Tx, ex *Executor) (int64, error) {
	b.calls = append(b.calls, ex.Table)
	return 1, nil
}

func TestExecutePolicyRoutesByTable(t *testing.T) {
	db := openDB(t)
	custom := &countingBackend{}
	svc := NewService(db, Policy{
		Default: &SQLBackend{Binder: NamedBinder{}},
		Tables:  map[string]Backend{"archive": custom},
	}, 0)
	other := root(3, "x")
	other.Table = "archive"

	rep, err := svc.Execute(context.Background(), []*Executor{root(2, "a"), other}, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, []string{"archive"}, custom.calls)
	assert.Equal(t, 1, count(t, db, "nodes"))
}

func TestExecuteReturningFeedsDependentStatement(t *testing.T) {
	db := openDB(t)
	ex := &Executor{
		Line: 2, Operation: OpInsert, Table: "nodes", Status: Pending,
		Plan: &sqlgen.Plan{
			Primary: &sqlgen.Statement{
				Table: "nodes", SQL: `insert into nodes(name) values (:name) returning id`,
				Params: []string{"name"}, Returning: "id",
			},
			Dependent: &sqlgen.Statement{
				Table: "tags", SQL: `insert into tags(node_id, tag) select :returned_id, :tag`,
				Params: []string{sqlgen.ReturnedIDParam, "tag"}, UsesReturnedID: true,
			},
		},
		Params: map[string]any{"name": "a", "tag": "isbn"},
	}

	rep, err := service(db, 0).Execute(context.Background(), []*Executor{ex}, true, true)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Succeeded, "%v", ex.Err)
	assert.Contains(t, rep.Results[0].Query, ";\n")

	var tag string
	require.NoError(t, db.QueryRow(`select t.tag from tags t join nodes n on t.node_id = n.id where n.name = 'a'`).Scan(&tag))
	assert.Equal(t, "isbn", tag)
}

func TestExecuteDependentFailureUndoesPrimary(t *testing.T) {
	db := openDB(t)
	ex := &Executor{
		Line: 2, Operation: OpInsert, Table: "nodes", Status: Pending,
		Plan: &sqlgen.Plan{
			Primary: &sqlgen.Statement{
				Table: "nodes", SQL: `insert into nodes(name) values (:name) returning id`,
				Params: []string{"name"}, Returning: "id",
			},
			Dependent: &sqlgen.Statement{
				Table: "tags", SQL: `insert into tags(node_id, tag) select :returned_id, :tag where 1 = 0`,
				Params: []string{sqlgen.ReturnedIDParam, "tag"}, UsesReturnedID: true,
			},
		},
		Params: map[string]any{"name": "a", "tag": "isbn"},
	}

	rep, err := service(db, 0).Execute(context.Background(), []*Executor{ex}, true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Zero(t, count(t, db, "nodes"))
}

func TestResultsOrderDeletesLast(t *testing.T) {
	del := failedExecutor(0, OpDelete, "nodes", fmt.Errorf("x"))
	exs := []*Executor{del, root(9, "z"), root(2, "a")}
	for _, ex := range exs[1:] {
		ex.Status = Success
	}
	rep := &Report{}
	rep.finish(exs)
	assert.Equal(t, OpDelete, rep.Results[2].Operation)
	assert.Equal(t, 2, rep.Results[0].Line)
	assert.Equal(t, 9, rep.Results[1].Line)
}

func TestNamedBinderMissingParam(t *testing.T) {
	_, _, err := NamedBinder{}.Bind("select :a", []string{"a"}, map[string]any{})
	assert.ErrorIs(t, err, ErrMissingParam)
}
