package httpserver

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/go-pdf/fpdf"
	"gorm.io/gorm"

	schedulesgorm "github.com/openroster/roster/internal/infra/persistence/gorm/schedules"
)

// schedulePDF renders the schedule as a printable sheet: header with the time
// range, the assigned volunteers with their skill, and the linked tasks.
func (s *Server) schedulePDF(ctx context.Context, sch *schedulesgorm.ScheduleRecord) ([]byte, error) {
	assignments, err := s.schedules.Assignments(ctx, sch.ID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListBySchedule(ctx, sch.ID)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(sch.Name, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, sch.Name, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, sch.StartTime.Format("Mon, 02 Jan 2006 15:04")+" - "+sch.EndTime.Format("15:04 MST"), "", 1, "L", false, 0, "")
	if sch.Description != "" {
		pdf.MultiCell(0, 6, sch.Description, "", "L", false)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Volunteers", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	if len(assignments) == 0 {
		pdf.CellFormat(0, 6, "nobody assigned yet", "", 1, "L", false, 0, "")
	}
	for _, a := range assignments {
		u, err := s.users.Get(ctx, a.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		line := u.Name
		if a.Skill != "" {
			line += " (" + a.Skill + ")"
		}
		pdf.CellFormat(0, 6, "- "+line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Tasks", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	if len(tasks) == 0 {
		pdf.CellFormat(0, 6, "no tasks linked", "", 1, "L", false, 0, "")
	}
	for i := range tasks {
		pdf.CellFormat(0, 6, "- "+tasks[i].Name+" ["+tasks[i].Status+"]", "", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 5, "generated "+time.Now().Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
