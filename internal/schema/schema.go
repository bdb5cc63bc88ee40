// Package schema описывает метаданные таблиц, нужные компилятору маппинга,
// и интерфейс их получения (живой каталог БД или статическое описание).
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTableNotFound  = errors.New("table not found")
	ErrColumnNotFound = errors.New("column not found")
)

type Column struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Nullable bool   `yaml:"nullable,omitempty" json:"nullable,omitempty"`
}

// ForeignKey — ограничение внешнего ключа (возможно составное).
type ForeignKey struct {
	Name       string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns    []string `yaml:"columns" json:"columns"`
	RefTable   string   `yaml:"ref_table" json:"refTable"`
	RefColumns []string `yaml:"ref_columns" json:"refColumns"`
}

type Table struct {
	Name        string       `yaml:"name" json:"name"`
	Columns     []Column     `yaml:"columns" json:"columns"`
	PrimaryKey  []string     `yaml:"primary_key,omitempty" json:"primaryKey,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty" json:"foreignKeys,omitempty"`
	Unique      [][]string   `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// Lookup — источник метаданных схемы.
type Lookup interface {
	Table(ctx context.Context, name string) (*Table, error)
	PrimaryKeys(ctx context.Context, table string) ([]string, error)
	// ForeignKey возвращает цель единственного внешнего ключа на колонке.
	// Пустая targetTable: ключа нет или он неоднозначен.
	ForeignKey(ctx context.Context, table, column string) (targetTable, targetColumn string, err error)
}

// Column ищет колонку без учёта регистра.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// SinglePrimaryKey — имя первичного ключа, если он состоит из одной колонки.
func (t *Table) SinglePrimaryKey() string {
	if len(t.PrimaryKey) == 1 {
		return t.PrimaryKey[0]
	}
	return ""
}

// ResolveForeignKey ищет ровно один одноколоночный внешний ключ на колонке.
func (t *Table) ResolveForeignKey(column string) (string, string) {
	var (
		target, targetCol string
		found             int
	)
	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) != 1 || !strings.EqualFold(fk.Columns[0], column) {
			continue
		}
		found++
		target = fk.RefTable
		if len(fk.RefColumns) == 1 {
			targetCol = fk.RefColumns[0]
		}
	}
	if found != 1 || targetCol == "" {
		return "", ""
	}
	return target, targetCol
}

// Static — Lookup поверх заранее известного набора таблиц.
type Static struct {
	tables map[string]*Table
}

func NewStatic(tables ...*Table) *Static {
	s := &Static{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		s.tables[strings.ToLower(t.Name)] = t
	}
	return s
}

func (s *Static) Table(_ context.Context, name string) (*Table, error) {
	t, ok := s.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

func (s *Static) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	t, err := s.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.PrimaryKey, nil
}

func (s *Static) ForeignKey(ctx context.Context, table, column string) (string, string, error) {
	t, err := s.Table(ctx, table)
	if err != nil {
		return "", "", err
	}
	target, col := t.ResolveForeignKey(column)
	return target, col, nil
}
