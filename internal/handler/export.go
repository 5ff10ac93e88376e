package handler

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"

	"drink-detector/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var exportColumns = []string{"id", "timestamp", "ax", "ay", "az", "gx", "gy", "gz", "pulse", "label"}

// ExportJSON exports every stored sample for offline training
func (h *Handler) ExportJSON(c *gin.Context) {
	samples, err := h.labeler.ExportAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "export failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"all_data": nonNil(samples)})
}

// ExportCSV exports every stored sample as CSV
func (h *Handler) ExportCSV(c *gin.Context) {
	samples, err := h.labeler.ExportAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "export failed")
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=sensor_data.csv")

	if err := writeCSV(c.Writer, samples); err != nil {
		h.logger.Error("Failed to write CSV export", zap.Error(err))
	}
}

func writeCSV(w io.Writer, samples []models.Sample) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportColumns); err != nil {
		return err
	}
	for _, s := range samples {
		label := ""
		if s.Label != nil {
			label = strconv.Itoa(*s.Label)
		}
		err := writer.Write([]string{
			strconv.FormatInt(s.ID, 10),
			models.FormatTimestamp(s.Timestamp),
			formatFloat(s.AX),
			formatFloat(s.AY),
			formatFloat(s.AZ),
			formatFloat(s.GX),
			formatFloat(s.GY),
			formatFloat(s.GZ),
			formatFloat(s.Pulse),
			label,
		})
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportXLSX exports every stored sample as a spreadsheet
func (h *Handler) ExportXLSX(c *gin.Context) {
	samples, err := h.labeler.ExportAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "export failed")
		return
	}

	f, err := buildWorkbook(samples)
	if err != nil {
		h.fail(c, err, "export failed")
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=sensor_data.xlsx")

	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("Failed to write workbook", zap.Error(err))
	}
}

func buildWorkbook(samples []models.Sample) (*excelize.File, error) {
	const sheet = "sensor_data"

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		f.Close()
		return nil, err
	}

	header := make([]any, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		f.Close()
		return nil, err
	}

	for i, s := range samples {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		var label any
		if s.Label != nil {
			label = *s.Label
		}
		row := []any{
			s.ID, models.FormatTimestamp(s.Timestamp),
			s.AX, s.AY, s.AZ, s.GX, s.GY, s.GZ, s.Pulse,
			label,
		}
		if err := sw.SetRow(cell, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := sw.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
