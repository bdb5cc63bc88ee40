package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tablesync/internal/reconcile"
)

// uploadedSync читает multipart-поле "file": CSV, первая строка — заголовок маппинга.
// Поле "comma" задаёт разделитель, флаги операций — поля insert/update/delete.
func uploadedSync(c *gin.Context) (syncReq, bool) {
	var req syncReq
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart file not found (field name 'file')"})
		return req, false
	}
	defer file.Close()

	var comma rune
	if v := c.PostForm("comma"); v != "" {
		comma = []rune(v)[0]
	}
	header, rows, err := reconcile.ReadCSV(file, comma)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read csv", "details": err.Error()})
		return req, false
	}
	req.Header, req.Rows = header, rows
	req.Insert = formBool(c, "insert")
	req.Update = formBool(c, "update")
	req.Delete = formBool(c, "delete")
	return req, true
}

func formBool(c *gin.Context, key string) *bool {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	b := !(strings.EqualFold(v, "false") || v == "0" || strings.EqualFold(v, "no"))
	return &b
}
