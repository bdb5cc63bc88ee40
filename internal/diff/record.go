// Package diff сравнивает входящие и текущие записи, ключованные кортежем
// значений ключевых колонок, и раскладывает разницу на insert/update/delete.
package diff

import (
	"encoding/json"
	"fmt"

	"tablesync/internal/value"
)

// Record — строка с именованными полями (ключ — заголовок колонки).
type Record struct {
	Line   int            `json:"line,omitempty"`
	Values map[string]any `json:"values"`
	// Previous — текущие значения перенесённых полей (только у update)
	Previous map[string]any `json:"previous,omitempty"`
}

// DuplicateKeyError — два входящих ряда с одним ключом и разными значениями.
type DuplicateKeyError struct {
	Key      string
	Line     int
	PrevLine int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("line %d: duplicate key %s (first seen on line %d)", e.Line, e.Key, e.PrevLine)
}

// RecordSet — записи в порядке добавления с индексом по ключу.
type RecordSet struct {
	Headers []string // сравниваемые колонки
	Unique  []string // колонки ключа
	// Types — типы листьев колонки по заголовку; без записи колонка сравнивается как текст
	Types map[string][]string

	records map[string]*Record
	order   []string
}

func NewRecordSet(headers, unique []string) *RecordSet {
	return &RecordSet{Headers: headers, Unique: unique, records: map[string]*Record{}}
}

// Key — ключ записи: JSON-массив нормализованных значений ключевых колонок.
func (s *RecordSet) Key(values map[string]any) string {
	parts := make([]string, len(s.Unique))
	for i, h := range s.Unique {
		parts[i] = value.Normalize(values[h], s.Types[h]...)
	}
	b, _ := json.Marshal(parts)
	return string(b)
}

// Add кладёт запись. Повтор ключа — ошибка; с dedupe остаётся первая запись.
func (s *RecordSet) Add(rec *Record, dedupe bool) error {
	key := s.Key(rec.Values)
	if prev, ok := s.records[key]; ok {
		if dedupe {
			return nil
		}
		return &DuplicateKeyError{Key: key, Line: rec.Line, PrevLine: prev.Line}
	}
	s.records[key] = rec
	s.order = append(s.order, key)
	return nil
}

func (s *RecordSet) Get(key string) (*Record, bool) {
	r, ok := s.records[key]
	return r, ok
}

func (s *RecordSet) Len() int { return len(s.order) }

// Keys — ключи в порядке добавления
func (s *RecordSet) Keys() []string { return append([]string(nil), s.order...) }

// Records — записи в порядке добавления
func (s *RecordSet) Records() []*Record {
	out := make([]*Record, len(s.order))
	for i, k := range s.order {
		out[i] = s.records[k]
	}
	return out
}
