// Package export renders the admin shift calendar as an Excel workbook.
package export

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
)

const (
	calendarSheet = "Calendar"
	shiftsSheet   = "Shifts"
)

var shiftColumns = []string{"Date", "Weekday", "Start", "End", "Hours", "Host", "Event", "Theme", "Location", "Notes"}

// MonthWorkbook builds a two sheet workbook: a month grid and a flat shift list.
type MonthWorkbook struct{}

// NewMonthWorkbook returns an exporter.
func NewMonthWorkbook() *MonthWorkbook {
	return &MonthWorkbook{}
}

// ExportMonth implements application.ShiftExporter.
func (w *MonthWorkbook) ExportMonth(month calendar.Range, shifts []application.Shift, employeeNames map[string]string) ([]byte, error) {
	if !month.IsValid() {
		return nil, fmt.Errorf("invalid month range %s", month)
	}

	sorted := slices.Clone(shifts)
	slices.SortStableFunc(sorted, func(a, b application.Shift) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := a.StartTime.Minutes() - b.StartTime.Minutes(); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", calendarSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(shiftsSheet); err != nil {
		return nil, err
	}

	styles, err := newStyles(f)
	if err != nil {
		return nil, err
	}
	if err := writeCalendar(f, styles, month, sorted, employeeNames); err != nil {
		return nil, fmt.Errorf("calendar sheet: %w", err)
	}
	if err := writeShiftList(f, styles, sorted, employeeNames); err != nil {
		return nil, fmt.Errorf("shift sheet: %w", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

type styles struct {
	title  int
	header int
	day    int
	cell   int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F7A8C"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.day, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E1F2F5"}},
	}); err != nil {
		return s, err
	}
	s.cell, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	return s, err
}

func writeCalendar(f *excelize.File, st styles, month calendar.Range, shifts []application.Shift, names map[string]string) error {
	title := time.Date(month.Start.Year, month.Start.Month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
	if err := f.MergeCell(calendarSheet, "A1", "G1"); err != nil {
		return err
	}
	if err := f.SetCellValue(calendarSheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetCellStyle(calendarSheet, "A1", "G1", st.title); err != nil {
		return err
	}
	for i := 0; i < 7; i++ {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(calendarSheet, cell, time.Weekday(i).String()); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(calendarSheet, "A2", "G2", st.header); err != nil {
		return err
	}
	if err := f.SetColWidth(calendarSheet, "A", "G", 26); err != nil {
		return err
	}

	byDate := make(map[calendar.Date][]string)
	for _, s := range shifts {
		byDate[s.Date] = append(byDate[s.Date], shiftLine(s, names))
	}

	row := 3
	for weekStart := calendar.WeekOf(month.Start).Start; weekStart.Before(month.End); weekStart = weekStart.AddDays(7) {
		maxLines := 1
		for i := 0; i < 7; i++ {
			d := weekStart.AddDays(i)
			if !month.Contains(d) {
				continue
			}
			dayCell, _ := excelize.CoordinatesToCellName(i+1, row)
			bodyCell, _ := excelize.CoordinatesToCellName(i+1, row+1)
			if err := f.SetCellInt(calendarSheet, dayCell, int64(d.Day)); err != nil {
				return err
			}
			lines := byDate[d]
			if len(lines) > maxLines {
				maxLines = len(lines)
			}
			if err := f.SetCellStr(calendarSheet, bodyCell, strings.Join(lines, "\n")); err != nil {
				return err
			}
		}
		lastDay, _ := excelize.CoordinatesToCellName(7, row)
		lastBody, _ := excelize.CoordinatesToCellName(7, row+1)
		firstDay, _ := excelize.CoordinatesToCellName(1, row)
		firstBody, _ := excelize.CoordinatesToCellName(1, row+1)
		if err := f.SetCellStyle(calendarSheet, firstDay, lastDay, st.day); err != nil {
			return err
		}
		if err := f.SetCellStyle(calendarSheet, firstBody, lastBody, st.cell); err != nil {
			return err
		}
		if err := f.SetRowHeight(calendarSheet, row+1, float64(15*maxLines+6)); err != nil {
			return err
		}
		row += 2
	}
	return nil
}

func writeShiftList(f *excelize.File, st styles, shifts []application.Shift, names map[string]string) error {
	if err := f.SetSheetRow(shiftsSheet, "A1", &shiftColumns); err != nil {
		return err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(shiftColumns), 1)
	if err := f.SetCellStyle(shiftsSheet, "A1", lastHeader, st.header); err != nil {
		return err
	}
	for i, s := range shifts {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []any{
			s.Date.String(),
			s.Date.Weekday().String(),
			s.StartTime.String(),
			s.EndTime.String(),
			s.StartTime.DurationUntil(s.EndTime).Hours(),
			hostName(s.EmployeeID, names),
			string(s.EventType),
			s.Theme,
			s.Location,
			s.Notes,
		}
		if err := f.SetSheetRow(shiftsSheet, cell, &values); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(shiftsSheet, "A", "J", 16); err != nil {
		return err
	}
	return f.SetPanes(shiftsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func shiftLine(s application.Shift, names map[string]string) string {
	line := fmt.Sprintf("%s-%s %s @ %s", s.StartTime, s.EndTime, hostName(s.EmployeeID, names), s.Location)
	if s.EventType != "" {
		line += " (" + string(s.EventType) + ")"
	}
	return line
}

func hostName(employeeID string, names map[string]string) string {
	if name := strings.TrimSpace(names[employeeID]); name != "" {
		return name
	}
	if employeeID == "" {
		return "Unassigned"
	}
	return employeeID
}
