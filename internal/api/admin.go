package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// POST /api/admin/reload — перечитать справочники подстановок и сбросить кеш схемы.
func AdminReloadHandler(srv *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		domains := 0
		if srv.Catalog != nil {
			if err := srv.Catalog.Reload(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "substitutes load error", "details": err.Error()})
				return
			}
			domains = srv.Catalog.Domains()
		}
		schemaReset := false
		if r, ok := srv.Syncer.Lookup.(resetter); ok {
			r.Reset()
			schemaReset = true
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":          true,
			"domains":     domains,
			"schemaReset": schemaReset,
		})
	}
}
