package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesync/internal/enrich"
	"tablesync/internal/executor"
	"tablesync/internal/reconcile"
	"tablesync/internal/reference"
	"tablesync/internal/schema"
	"tablesync/internal/sqlgen"
)

const schemaYAML = `
tables:
  - name: authors
    primary_key: [id]
    columns: [{name: id, type: integer}, {name: name, type: text}]
  - name: books
    primary_key: [id]
    columns:
      - {name: id, type: integer}
      - {name: title, type: text}
      - {name: authorid, type: integer, nullable: true}
    foreign_keys:
      - {columns: [authorid], ref_table: authors, ref_columns: [id]}
`

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`
create table authors (id integer primary key, name text not null unique);
create table books (id integer primary key, title text not null unique, authorid integer references authors(id));
insert into authors(id, name) values (1, 'Joseph Heller');
insert into books(title, authorid) values ('Catch-22', 1);`)
	require.NoError(t, err)

	lookup, err := schema.ParseStaticYAML([]byte(schemaYAML))
	require.NoError(t, err)
	syncer := &reconcile.Syncer{
		DB:       db,
		Lookup:   lookup,
		Options:  enrich.DefaultOptions(),
		Renderer: sqlgen.New(sqlgen.Options{}),
		Binder:   executor.NamedBinder{},
		Catalog:  reference.NewCatalog(),
		Policy:   executor.Policy{Default: &executor.SQLBackend{Binder: executor.NamedBinder{}}},
	}
	return NewRouter(NewServer(syncer)), db
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestParseHandler(t *testing.T) {
	r, _ := newTestServer(t)
	w, out := doJSON(t, r, http.MethodPost, "/api/mapping/parse", gin.H{"table": "books", "header": "title[unique], authorid(name)"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"title", "authorid.name"}, out["headers"])
	assert.Equal(t, []any{"title"}, out["unique"])
}

func TestParseHandlerErrors(t *testing.T) {
	r, _ := newTestServer(t)

	w, out := doJSON(t, r, http.MethodPost, "/api/mapping/parse", gin.H{"table": "books", "header": "title, authorid(name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	errs := out["errors"].([]any)
	assert.Equal(t, ErrMappingSyntax, errs[0].(map[string]any)["code"])

	w, out = doJSON(t, r, http.MethodPost, "/api/mapping/parse", gin.H{"table": "books", "header": "title[unique], pages"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs = out["errors"].([]any)
	assert.Equal(t, ErrResolution, errs[0].(map[string]any)["code"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/mapping/parse", gin.H{"table": "books"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSQLHandler(t *testing.T) {
	r, _ := newTestServer(t)
	w, out := doJSON(t, r, http.MethodPost, "/api/mapping/sql", gin.H{"table": "books", "header": "title[unique], authorid(name)"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ins := out["insert"].(map[string]any)["plan"].(map[string]any)["primary"].(map[string]any)
	assert.Equal(t,
		"insert into books(title, authorid) select cast(:title as text), authors.id from authors where authors.name = cast(:name as text)",
		ins["sql"])
	assert.Contains(t, out["select"].(map[string]any)["sql"], "left join authors")
}

func TestPlanAndApplyHandlers(t *testing.T) {
	r, db := newTestServer(t)
	body := gin.H{"header": "title[unique=true], authorid(name)", "rows": [][]string{{"Catch XIII", "Joseph Heller"}}}

	w, out := doJSON(t, r, http.MethodPost, "/api/sync/books/plan", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := out["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["inserts"])
	assert.EqualValues(t, 1, summary["deletes"])
	assert.EqualValues(t, 0, summary["updates"])
	assert.Len(t, out["statements"], 2)

	w, out = doJSON(t, r, http.MethodPost, "/api/sync/books/apply?execute=false", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, out["report"].(map[string]any)["note"], "dry run")

	body["delete"] = false
	w, out = doJSON(t, r, http.MethodPost, "/api/sync/books/apply", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := out["report"].(map[string]any)
	assert.EqualValues(t, 1, rep["succeeded"])
	assert.Equal(t, true, rep["committed"])

	var n int
	require.NoError(t, db.QueryRow(`select count(*) from books`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestApplyReportsFailedRows(t *testing.T) {
	r, _ := newTestServer(t)
	body := gin.H{"header": "title[unique], authorid(name)", "rows": [][]string{{"Odes", "Nobody"}}, "delete": false}
	w, out := doJSON(t, r, http.MethodPost, "/api/sync/books/apply", body)
	assert.Equal(t, http.StatusMultiStatus, w.Code)
	rep := out["report"].(map[string]any)
	assert.EqualValues(t, 1, rep["failed"])
	res := rep["results"].([]any)[0].(map[string]any)
	assert.Contains(t, res["error"], "expected exactly 1")
}

func TestApplyUploadedCSV(t *testing.T) {
	r, db := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "books.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("title[unique],authorid(name)\nCatch XIII,Joseph Heller\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("delete", "false"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sync/books/apply", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var n int
	require.NoError(t, db.QueryRow(`select count(*) from books`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestMetaAndReload(t *testing.T) {
	r, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/meta/books", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, []any{"id"}, meta["primaryKey"])
	fk := meta["foreignKeys"].([]any)[0].(map[string]any)
	assert.Equal(t, true, fk["resolvable"])

	req = httptest.NewRequest(http.MethodGet, "/api/meta/nope", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w2, out := doJSON(t, r, http.MethodPost, "/api/admin/reload", gin.H{})
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, false, out["schemaReset"])
}
