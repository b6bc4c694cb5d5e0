package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// DaySummary aggregates the message log of one UTC day.
type DaySummary struct {
	Date           string `json:"date"`
	TotalMessages  int    `json:"total_messages"`
	TotalTickets   int    `json:"total_tickets"`
	TotalNoTickets int    `json:"total_no_tickets"`
	TotalInvalid   int    `json:"total_invalid"`
}

var summaryHeader = []string{"date", "total_messages", "total_tickets", "total_no_tickets", "total_invalid"}

// Summarize groups entries by UTC day, oldest day first.
func Summarize(entries []Entry) []DaySummary {
	byDay := make(map[string]*DaySummary)
	for _, entry := range entries {
		day := entry.Timestamp.UTC().Format("2006-01-02")
		summary, ok := byDay[day]
		if !ok {
			summary = &DaySummary{Date: day}
			byDay[day] = summary
		}
		summary.TotalMessages++
		switch {
		case entry.Counted():
			summary.TotalTickets++
		case entry.TicketStatus == StatusNoTicket:
			summary.TotalNoTickets++
		case entry.TicketStatus == StatusInvalid:
			summary.TotalInvalid++
		}
	}
	out := make([]DaySummary, 0, len(byDay))
	for _, summary := range byDay {
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (s DaySummary) record() []string {
	return []string{
		s.Date,
		strconv.Itoa(s.TotalMessages),
		strconv.Itoa(s.TotalTickets),
		strconv.Itoa(s.TotalNoTickets),
		strconv.Itoa(s.TotalInvalid),
	}
}

// BuildSummaryCSV renders the daily summary as CSV.
func BuildSummaryCSV(days []DaySummary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(summaryHeader); err != nil {
		return nil, err
	}
	for _, day := range days {
		if err := w.Write(day.record()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryXLSX renders the daily summary as a workbook with one sheet.
func BuildSummaryXLSX(days []DaySummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "summary"
	f.SetSheetName("Sheet1", sheet)

	for i, title := range summaryHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}
	for i, day := range days {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), day.Date)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), day.TotalMessages)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), day.TotalTickets)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), day.TotalNoTickets)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), day.TotalInvalid)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryPDF renders the daily summary as a one-table PDF.
func BuildSummaryPDF(days []DaySummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Telemetry Message Summary")
	pdf.Ln(10)

	widths := []float64{35, 35, 35, 40, 35}
	pdf.SetFont("Arial", "B", 10)
	for i, title := range summaryHeader {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range days {
		for i, value := range day.record() {
			align := "R"
			if i == 0 {
				align = "C"
			}
			pdf.CellFormat(widths[i], 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
