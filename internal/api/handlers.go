package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tablesync/internal/diff"
	"tablesync/internal/executor"
	"tablesync/internal/reconcile"
	"tablesync/internal/sqlgen"
)

type mappingReq struct {
	Table  string `json:"table" binding:"required"`
	Header string `json:"header" binding:"required"`
}

type syncReq struct {
	Header    string     `json:"header"`
	Rows      [][]string `json:"rows"`
	FirstLine int        `json:"firstLine"`
	Insert    *bool      `json:"insert"`
	Update    *bool      `json:"update"`
	Delete    *bool      `json:"delete"`
}

func (r syncReq) request(table string) reconcile.Request {
	return reconcile.Request{
		Table:     table,
		Header:    r.Header,
		Rows:      r.Rows,
		FirstLine: r.FirstLine,
		Ops:       diff.Options{Insert: orTrue(r.Insert), Update: orTrue(r.Update), Delete: orTrue(r.Delete)},
	}
}

// POST /api/mapping/parse
func ParseHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mappingReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "details": err.Error()})
			return
		}
		ent, err := srv.Syncer.Entity(c.Request.Context(), strings.TrimSpace(req.Table), req.Header)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entity": ent, "headers": ent.Headers(), "unique": ent.UniqueHeaders()})
	}
}

type rendered struct {
	Plan  *sqlgen.Plan `json:"plan,omitempty"`
	Error string       `json:"error,omitempty"`
}

func render(p *sqlgen.Plan, err error) rendered {
	if err != nil {
		return rendered{Error: err.Error()}
	}
	return rendered{Plan: p}
}

// POST /api/mapping/sql — SQL всех четырёх операций для полного дерева
func SQLHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mappingReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "details": err.Error()})
			return
		}
		ent, err := srv.Syncer.Entity(c.Request.Context(), strings.TrimSpace(req.Table), req.Header)
		if err != nil {
			fail(c, err)
			return
		}
		r := srv.Syncer.Renderer
		sel, err := r.Select(ent)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"select": sel,
			"insert": render(r.Insert(ent)),
			"update": render(r.Update(ent)),
			"delete": render(r.Delete(ent)),
		})
	}
}

func bindSync(c *gin.Context) (syncReq, bool) {
	var req syncReq
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return uploadedSync(c)
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "details": err.Error()})
		return req, false
	}
	return req, true
}

type planSummary struct {
	Incoming int `json:"incoming"`
	Current  int `json:"current"`
	Rejected int `json:"rejected"`
	Inserts  int `json:"inserts"`
	Updates  int `json:"updates"`
	Deletes  int `json:"deletes"`
}

func summarize(p *reconcile.Plan) planSummary {
	return planSummary{
		Incoming: p.Incoming,
		Current:  p.Current,
		Rejected: p.Rejected,
		Inserts:  len(p.Diff.Inserts),
		Updates:  len(p.Diff.Updates),
		Deletes:  len(p.Diff.Deletes),
	}
}

// POST /api/sync/:table/plan
func PlanHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSync(c)
		if !ok {
			return
		}
		plan, err := srv.Syncer.Plan(c.Request.Context(), req.request(c.Param("table")))
		if err != nil {
			fail(c, err)
			return
		}
		stmts := make([]executor.Result, 0, len(plan.Executors))
		for _, ex := range plan.Executors {
			stmts = append(stmts, ex.Result())
		}
		c.JSON(http.StatusOK, gin.H{
			"summary":    summarize(plan),
			"select":     plan.Select,
			"diff":       plan.Diff,
			"statements": stmts,
		})
	}
}

// POST /api/sync/:table/apply?execute=true&commit=true
func ApplyHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSync(c)
		if !ok {
			return
		}
		execute := queryBool(c, "execute", true)
		commit := queryBool(c, "commit", true)
		plan, rep, err := srv.apply(c.Request.Context(), req.request(c.Param("table")), execute, commit)
		if err != nil {
			fail(c, err)
			return
		}
		status := http.StatusOK
		if rep.Failed > 0 {
			status = http.StatusMultiStatus
		}
		c.JSON(status, gin.H{"summary": summarize(plan), "report": rep})
	}
}
