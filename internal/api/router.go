package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewRouter(srv *Server) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/mapping/parse", ParseHandler(srv))
		apiGroup.POST("/mapping/sql", SQLHandler(srv))

		apiGroup.POST("/sync/:table/plan", PlanHandler(srv))
		apiGroup.POST("/sync/:table/apply", ApplyHandler(srv))

		apiGroup.GET("/meta/:table", MetaTableHandler(srv))
		apiGroup.POST("/admin/reload", AdminReloadHandler(srv))
	}
	return r
}

func RunServer(addr string, srv *Server) error {
	return NewRouter(srv).Run(addr)
}
