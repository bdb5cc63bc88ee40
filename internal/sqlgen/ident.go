package sqlgen

import (
	"strings"
	"unicode"
)

var reserved = map[string]struct{}{
	"user": {}, "select": {}, "table": {}, "insert": {}, "update": {}, "delete": {},
	"where": {}, "join": {}, "group": {}, "order": {}, "limit": {}, "offset": {},
	"primary": {}, "foreign": {}, "key": {}, "constraint": {}, "default": {},
	"from": {}, "into": {}, "values": {}, "unique": {}, "index": {}, "create": {},
	"drop": {}, "alter": {}, "schema": {}, "grant": {}, "revoke": {}, "using": {},
	"as": {}, "on": {}, "and": {}, "or": {}, "not": {}, "null": {}, "set": {},
	"cast": {}, "references": {}, "check": {}, "column": {}, "desc": {}, "asc": {},
}

func isReserved(s string) bool { _, ok := reserved[strings.ToLower(s)]; return ok }

// simple: имя из [a-z_][a-z0-9_]* можно не кавычить
func simple(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z'):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// ident кавычит идентификатор только при необходимости: имена из схемы
// передаются как есть, регистр сохраняется.
func ident(s string) string {
	if simple(s) && !isReserved(s) {
		return s
	}
	return quoteIdent(s)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func qualified(alias, col string) string { return ident(alias) + "." + ident(col) }

// tableRef: "books" или "books as books_1"
func tableRef(table, alias string) string {
	if alias == "" || alias == table {
		return ident(table)
	}
	return ident(table) + " as " + ident(alias)
}
