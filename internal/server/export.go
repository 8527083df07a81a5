// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/Thermoquad/pi30gate/internal/history"
	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// BuildHistoryXLSX renders the history series as a spreadsheet, one row per bucket.
func BuildHistoryXLSX(points []history.Point, bucketWidth time.Duration, day time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "history"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Bucket")
	_ = f.SetCellValue(sheet, "B1", "Time")
	_ = f.SetCellValue(sheet, "C1", "PV Power (W)")
	_ = f.SetCellValue(sheet, "D1", "Load Power (W)")
	for i, p := range points {
		row := i + 2
		start := time.Duration(p.BucketIndex) * bucketWidth
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), p.BucketIndex)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), formatClock(start))
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), p.PVPower)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), p.LoadPower)
	}
	_ = f.SetCellValue(sheet, "F1", "Day")
	_ = f.SetCellValue(sheet, "G1", day.Format("2006-01-02"))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatClock(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// HistoryExportHandler serves today's series as an xlsx workbook.
func (s *Server) HistoryExportHandler(c echo.Context) error {
	now := s.now()
	data, err := BuildHistoryXLSX(s.series.Points(), s.opts.BucketWidth, now)
	if err != nil {
		s.logger.Error("history export failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "export failed")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="history-%s.xlsx"`, now.Format("20060102")))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
