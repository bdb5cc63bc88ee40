// Package executor превращает строки диффа в исполняемые операторы и
// применяет их в одной транзакции с точками сохранения и повтором до неподвижной точки.
package executor

import (
	"fmt"
	"strings"

	"tablesync/internal/sqlgen"
)

type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

type Status string

const (
	Pending Status = "PENDING"
	Success Status = "SUCCESS"
	Failed  Status = "FAILED"
)

// Executor — одна строка диффа, готовая к исполнению. Переходы статуса:
// PENDING -> SUCCESS | FAILED, дальше не меняется.
type Executor struct {
	Line      int
	Operation Operation
	Table     string
	Plan      *sqlgen.Plan
	Params    map[string]any

	Status   Status
	Err      error
	RowCount int64
	Executed bool
}

// Failed — терминальный исполнитель для строки, которую не удалось подготовить.
func failedExecutor(line int, op Operation, table string, err error) *Executor {
	return &Executor{Line: line, Operation: op, Table: table, Status: Failed, Err: err}
}

// Query — текст операторов плана через ";\n"
func (e *Executor) Query() string {
	if e.Plan == nil {
		return ""
	}
	var parts []string
	for _, st := range e.Plan.Statements() {
		parts = append(parts, st.SQL)
	}
	return strings.Join(parts, ";\n")
}

// RowValueError — плохое значение строки: не делится, не приводится к типу,
// два корневых extension-отношения. Исполнитель сразу FAILED.
type RowValueError struct {
	Line   int
	Header string
	Err    error
}

func (e *RowValueError) Error() string {
	if e.Header != "" {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Header, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowValueError) Unwrap() error { return e.Err }

// ExecutionError — оператор отклонён базой или затронул не ровно одну строку.
type ExecutionError struct {
	Table    string
	SQL      string
	RowCount int64
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("%s: statement affected %d rows, expected exactly 1", e.Table, e.RowCount)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Result — строка итогового отчёта.
type Result struct {
	Line      int            `json:"line,omitempty"`
	Operation Operation      `json:"operation"`
	Table     string         `json:"table"`
	Query     string         `json:"query"`
	Params    map[string]any `json:"params,omitempty"`
	Success   bool           `json:"success"`
	Executed  bool           `json:"executed"`
	RowCount  int64          `json:"rowcount"`
	Error     string         `json:"error,omitempty"`
}

// Result — строка отчёта по текущему состоянию исполнителя.
func (e *Executor) Result() Result {
	r := Result{
		Line:      e.Line,
		Operation: e.Operation,
		Table:     e.Table,
		Query:     e.Query(),
		Params:    e.Params,
		Success:   e.Status == Success,
		Executed:  e.Executed,
		RowCount:  e.RowCount,
	}
	if e.Err != nil && e.Status == Failed {
		r.Error = e.Err.Error()
	}
	return r
}
