package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tablesync/internal/enrich"
	"tablesync/internal/mapping"
	"tablesync/internal/schema"
	"tablesync/internal/sqlgen"
)

// FieldError — элемент списка ошибок в ответе.
type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

const (
	ErrMappingSyntax = "mapping_syntax"
	ErrResolution    = "schema_resolution"
	ErrMapping       = "mapping_invalid"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

// mappingError отвечает на ошибку разбора/обогащения заголовка; false — ошибка не про маппинг.
func mappingError(c *gin.Context, err error) bool {
	var (
		se *mapping.SyntaxError
		re *enrich.ResolutionError
	)
	switch {
	case errors.As(err, &se):
		c.JSON(http.StatusBadRequest, gin.H{"errors": []FieldError{ferr(ErrMappingSyntax, "cell "+strconv.Itoa(se.Cell), err.Error())}})
	case errors.As(err, &re):
		field := re.Table
		if re.Column != "" {
			field += "." + re.Column
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": []FieldError{ferr(ErrResolution, field, err.Error())}})
	case errors.Is(err, mapping.ErrEmptyHeader), errors.Is(err, sqlgen.ErrNoUniqueColumns),
		errors.Is(err, sqlgen.ErrNoColumns), errors.Is(err, schema.ErrTableNotFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": []FieldError{ferr(ErrMapping, "header", err.Error())}})
	default:
		return false
	}
	return true
}

// fail — ответ на ошибку запроса: маппинг отдельно, остальное 500.
func fail(c *gin.Context, err error) {
	if mappingError(c, err) {
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed", "details": err.Error()})
}

// queryBool: "1/true/yes" и "0/false/no"; пусто — def
func queryBool(c *gin.Context, key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func orTrue(p *bool) bool { return p == nil || *p }
