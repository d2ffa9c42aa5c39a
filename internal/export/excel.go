package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clipcast/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Exporter writes performance workbooks for the content team: one sheet
// of rollup aggregates, one sheet of recent job outcomes.
type Exporter struct {
	path   string
	logger zerolog.Logger
}

func NewExporter(path string, logger *zerolog.Logger) *Exporter {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "exporter").Logger()
	}
	return &Exporter{path: path, logger: log}
}

// WriteRollupReport creates an Excel workbook from rollups and recent job
// outcomes and returns the path to the saved file.
func (e *Exporter) WriteRollupReport(rollups []models.RollupSnapshot, jobs []models.PublishJob) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating report directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeRollupSheet(f, rollups); err != nil {
		return "", err
	}
	if err := e.writeJobsSheet(f, jobs); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("performance_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("performance report created")
	return filePath, nil
}

func (e *Exporter) writeRollupSheet(f *excelize.File, rollups []models.RollupSnapshot) error {
	const sheetName = "Rollups"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Content ID", "Views", "Likes", "Comments", "Shares", "Saves",
		"Engagement", "Best Platform", "Platforms", "Checkbacks", "Computed At",
	}
	writeHeaderRow(f, sheetName, headers)

	for i, r := range rollups {
		row := i + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), r.ContentID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), r.TotalViews)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), r.TotalLikes)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), r.TotalComments)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), r.TotalShares)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), r.TotalSaves)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), r.TotalLikes+r.TotalComments+r.TotalShares)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), r.BestPlatform)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), r.PlatformsTracked)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), r.CompletedCheckbacks)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), r.ComputedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 12)
	_ = f.SetColWidth(sheetName, "B", "G", 12)
	_ = f.SetColWidth(sheetName, "H", "H", 16)
	_ = f.SetColWidth(sheetName, "I", "J", 12)
	_ = f.SetColWidth(sheetName, "K", "K", 20)
	return nil
}

func (e *Exporter) writeJobsSheet(f *excelize.File, jobs []models.PublishJob) error {
	const sheetName = "Jobs"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}

	headers := []string{
		"ID", "Content ID", "Platform", "Account", "Status", "Priority",
		"Scheduled For", "Published At", "Retries", "Last Error",
	}
	writeHeaderRow(f, sheetName, headers)

	for i, j := range jobs {
		row := i + 2
		publishedAt := ""
		if j.PublishedAt != nil {
			publishedAt = j.PublishedAt.Format("02.01.2006 15:04")
		}
		lastError := ""
		if j.LastError != nil {
			lastError = *j.LastError
		}
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), j.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), j.ContentID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), j.Platform)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), j.Account)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), j.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), j.Priority)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), j.ScheduledFor.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), publishedAt)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), j.RetryCount)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), lastError)
	}

	_ = f.SetColWidth(sheetName, "A", "B", 12)
	_ = f.SetColWidth(sheetName, "C", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "F", 10)
	_ = f.SetColWidth(sheetName, "G", "H", 20)
	_ = f.SetColWidth(sheetName, "I", "I", 10)
	_ = f.SetColWidth(sheetName, "J", "J", 40)
	return nil
}

func writeHeaderRow(f *excelize.File, sheetName string, headers []string) {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}
	if len(headers) == 0 {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return
	}
	_ = f.SetCellStyle(sheetName, "A1", last, style)
}
