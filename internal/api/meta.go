package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tablesync/internal/schema"
)

type metaForeignKey struct {
	Columns    []string `json:"columns"`
	RefTable   string   `json:"refTable"`
	RefColumns []string `json:"refColumns"`
	// Resolvable: ключ одноколоночный и единственный на колонке, маппинг пойдёт через join
	Resolvable bool `json:"resolvable"`
}

// GET /api/meta/:table
func MetaTableHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		tbl, err := srv.Syncer.Lookup.Table(c.Request.Context(), c.Param("table"))
		if errors.Is(err, schema.ErrTableNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Table not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "schema lookup failed", "details": err.Error()})
			return
		}
		fks := make([]metaForeignKey, 0, len(tbl.ForeignKeys))
		for _, fk := range tbl.ForeignKeys {
			ok := false
			if len(fk.Columns) == 1 {
				target, _ := tbl.ResolveForeignKey(fk.Columns[0])
				ok = target != ""
			}
			fks = append(fks, metaForeignKey{
				Columns:    append([]string(nil), fk.Columns...),
				RefTable:   fk.RefTable,
				RefColumns: append([]string(nil), fk.RefColumns...),
				Resolvable: ok,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"table":       tbl.Name,
			"columns":     tbl.Columns,
			"primaryKey":  tbl.PrimaryKey,
			"foreignKeys": fks,
		})
	}
}
