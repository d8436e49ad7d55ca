// Package export writes applications to an XLSX workbook for the reviewer.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"loyaltybot/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	applicationsSheet = "Заявки"
	summarySheet      = "Сводка"
)

var columns = []struct {
	title string
	width float64
	value func(a *models.Application) interface{}
}{
	{"Строка", 8, func(a *models.Application) interface{} { return a.SheetRow }},
	{"Дата", 20, func(a *models.Application) interface{} { return a.Timestamp() }},
	{"Инициатор", 25, func(a *models.Application) interface{} { return a.Submitter.FullName }},
	{"Telegram", 16, func(a *models.Application) interface{} { return a.Submitter.Handle() }},
	{"Телефон", 16, func(a *models.Application) interface{} { return a.Submitter.Phone }},
	{"Владелец", 25, func(a *models.Application) interface{} { return a.OwnerFullName() }},
	{"Причина", 30, func(a *models.Application) interface{} { return a.Reason }},
	{"Тип карты", 12, func(a *models.Application) interface{} { return string(a.CardType) }},
	{"Номер карты", 15, func(a *models.Application) interface{} { return a.CardNumber }},
	{"Категория", 15, func(a *models.Application) interface{} { return a.Category }},
	{"Сумма", 12, func(a *models.Application) interface{} { return a.AmountLabel() }},
	{"Периодичность", 16, func(a *models.Application) interface{} { return string(a.Frequency) }},
	{"Место выдачи", 18, func(a *models.Application) interface{} { return a.IssueLocation }},
	{"Статус", 16, func(a *models.Application) interface{} { return string(status(a)) }},
	{"Причина отказа", 30, func(a *models.Application) interface{} { return a.RejectionReason }},
	{"Дата активации", 15, func(a *models.Application) interface{} { return a.ActivationDate }},
}

func status(a *models.Application) models.Status {
	switch {
	case a.ApprovalStatus.IsTerminal():
		return a.ApprovalStatus
	case a.Status != "":
		return a.Status
	default:
		return models.StatusPending
	}
}

type Exporter struct {
	dir    string
	logger *zerolog.Logger
	now    func() time.Time
}

func New(dir string, logger *zerolog.Logger) *Exporter {
	if dir == "" {
		dir = "exports"
	}
	return &Exporter{dir: dir, logger: logger, now: time.Now}
}

// Applications writes the list plus a summary sheet and returns the file path.
func (e *Exporter) Applications(apps []*models.Application, source string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(applicationsSheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
	})

	for i, c := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(applicationsSheet, cell, c.title); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(applicationsSheet, col, col, c.width)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.SetCellStyle(applicationsSheet, "A1", lastCol+"1", headerStyle)
	_ = f.SetPanes(applicationsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	stats := models.NewStatistics()
	for r, app := range apps {
		stats.Add(app)
		row := make([]interface{}, len(columns))
		for i, c := range columns {
			row[i] = c.value(app)
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(applicationsSheet, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", r+2, err)
		}
	}
	if len(apps) > 0 {
		_ = f.AutoFilter(applicationsSheet, "A1:"+lastCol+strconv.Itoa(len(apps)+1), nil)
	}

	if err := e.writeSummary(f, stats, source, headerStyle); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("applications_%s.xlsx", e.now().In(models.Moscow).Format("2006-01-02_150405"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(apps)).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) writeSummary(f *excelize.File, stats *models.Statistics, source string, headerStyle int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 28)
	_ = f.SetColWidth(summarySheet, "B", "B", 12)

	rows := [][]interface{}{
		{"Сформировано", e.now().In(models.Moscow).Format(models.TimestampLayout)},
		{"Источник", sourceLabel(source)},
		{"Всего заявок", stats.Total},
	}
	groups := []struct {
		title string
		m     map[string]int
	}{
		{"По статусу", stats.ByStatus},
		{"По типу карты", stats.ByCardType},
		{"По категории", stats.ByCategory},
	}
	var headerRows []int
	for _, g := range groups {
		rows = append(rows, []interface{}{})
		rows = append(rows, []interface{}{g.title})
		headerRows = append(headerRows, len(rows))
		for _, k := range sortedKeys(g.m) {
			rows = append(rows, []interface{}{k, g.m[k]})
		}
	}

	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		r := r
		if err := f.SetSheetRow(summarySheet, "A"+strconv.Itoa(i+1), &r); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	for _, n := range headerRows {
		cell := "A" + strconv.Itoa(n)
		_ = f.SetCellStyle(summarySheet, cell, cell, headerStyle)
	}
	return nil
}

func sourceLabel(source string) string {
	if source == models.ReportSourceLocal {
		return "локальная база (таблица недоступна)"
	}
	return "Google Таблица"
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
