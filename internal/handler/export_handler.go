package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/keyserver-api/internal/observability/logger"
	"github.com/yourusername/keyserver-api/internal/service"
)

// Листы выгрузки
const (
	sheetBlocked   = "Blocked"
	sheetUnblocked = "Unblocked"
	sheetDeleted   = "Deleted"
)

// ExportHandler выгружает списки ключей в Excel
type ExportHandler struct {
	keyService *service.KeyService
}

// NewExportHandler создает обработчик выгрузки
func NewExportHandler(keyService *service.KeyService) *ExportHandler {
	return &ExportHandler{keyService: keyService}
}

// ExportXLSX отдаёт снимок пула: по листу на каждый список
// GET /export.xlsx
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	log := logger.From(c.Request.Context())
	snap := h.keyService.Snapshot(c.Request.Context())

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetBlocked); err != nil {
		log.Error("excel: rename sheet failed", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
		return
	}
	for _, name := range []string{sheetUnblocked, sheetDeleted} {
		if _, err := f.NewSheet(name); err != nil {
			log.Error("excel: create sheet failed", logger.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
			return
		}
	}

	sheets := []struct {
		name string
		keys []string
	}{
		{sheetBlocked, snap.Blocked},
		{sheetUnblocked, snap.Unblocked},
		{sheetDeleted, snap.Deleted},
	}
	for _, s := range sheets {
		if err := writeKeysSheet(f, s.name, s.keys); err != nil {
			log.Error("excel: write sheet failed", logger.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create Excel file"})
			return
		}
	}

	filename := fmt.Sprintf("keys_%s.xlsx", snap.TakenAt.Format("2006-01-02_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Status(http.StatusOK)

	if err := f.Write(c.Writer); err != nil {
		log.Error("excel: write response failed", logger.Err(err))
	}
}

// writeKeysSheet пишет один список через StreamWriter
func writeKeysSheet(f *excelize.File, sheet string, keys []string) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", []interface{}{"#", "Key"}); err != nil {
		return err
	}
	for i, key := range keys {
		cell := fmt.Sprintf("A%d", i+2)
		if err := sw.SetRow(cell, []interface{}{i + 1, sanitizeForExcel(key)}); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}
