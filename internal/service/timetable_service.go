package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
	"github.com/halaqat-app/progress-api/pkg/export"
)

type rosterReader interface {
	ListStudentsByTeacher(ctx context.Context, teacherID string) ([]models.AssignedStudent, error)
}

type ledgerRangeReader interface {
	Range(ctx context.Context, studentIDs []string, from, to models.Date) ([]models.LedgerEntry, error)
}

// TimetableService projects the ledger into a dense (student × day) grid for
// one teacher's roster. Students outside the teacher's current assignment set
// are never included.
type TimetableService struct {
	assignments rosterReader
	ledger      ledgerRangeReader
	cache       *CacheService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	cfg         config.TimetableConfig
	logger      *zap.Logger
}

// NewTimetableService constructs the timetable service.
func NewTimetableService(assignments rosterReader, ledger ledgerRangeReader, cache *CacheService, cfg config.TimetableConfig, logger *zap.Logger) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 92
	}
	return &TimetableService{
		assignments: assignments,
		ledger:      ledger,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		cfg:         cfg,
		logger:      logger,
	}
}

// Project builds the grid for [from, to]. Every assigned student gets a cell
// for every day in range; days without a ledger entry stay absent. The latest
// entry per day wins.
func (s *TimetableService) Project(ctx context.Context, teacherID string, from, to models.Date) (*models.TimetableGrid, error) {
	if from.IsZero() || to.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from and to dates are required")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range is inverted")
	}
	if from.DaysUntil(to)+1 > s.cfg.MaxRangeDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range exceeds the maximum window")
	}

	cacheKey := TimetableCacheKey(teacherID, from, to)
	var cached models.TimetableGrid
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	roster, err := s.assignments.ListStudentsByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load teacher roster")
	}

	days := make([]string, 0, from.DaysUntil(to)+1)
	for day := from; !day.After(to); day = day.AddDays(1) {
		days = append(days, day.String())
	}

	grid := &models.TimetableGrid{
		TeacherID: teacherID,
		From:      from,
		To:        to,
		Days:      days,
		Rows:      make([]models.TimetableRow, 0, len(roster)),
	}

	studentIDs := make([]string, 0, len(roster))
	rowIndex := make(map[string]int, len(roster))
	for _, student := range roster {
		studentIDs = append(studentIDs, student.StudentID)
		row := models.TimetableRow{
			StudentID:   student.StudentID,
			StudentName: student.StudentName,
			Days:        make(map[string]models.TimetableCell, len(days)),
		}
		for _, day := range days {
			row.Days[day] = models.TimetableCell{}
		}
		rowIndex[student.StudentID] = len(grid.Rows)
		grid.Rows = append(grid.Rows, row)
	}

	entries, err := s.ledger.Range(ctx, studentIDs, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read ledger range")
	}
	// Entries arrive in (occurred_on, created_at) order, so overwriting leaves
	// the latest entry per day in place.
	for _, entry := range entries {
		idx, ok := rowIndex[entry.StudentID]
		if !ok {
			continue
		}
		grid.Rows[idx].Days[entry.OccurredOn.String()] = models.TimetableCell{
			Present:  true,
			Outcome:  entry.Outcome,
			RawGrade: entry.RawGrade,
			StageID:  entry.StageID,
			Page:     entry.PageNumber,
		}
	}

	s.cache.Set(ctx, cacheKey, grid, s.cfg.CacheTTL)
	return grid, nil
}

// ExportCSV renders the projected grid as CSV.
func (s *TimetableService) ExportCSV(ctx context.Context, teacherID string, from, to models.Date) ([]byte, error) {
	grid, err := s.Project(ctx, teacherID, from, to)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(gridTable(grid))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render timetable csv")
	}
	return data, nil
}

// ExportPDF renders the projected grid as a PDF document.
func (s *TimetableService) ExportPDF(ctx context.Context, teacherID string, from, to models.Date) ([]byte, error) {
	grid, err := s.Project(ctx, teacherID, from, to)
	if err != nil {
		return nil, err
	}
	data, err := s.pdf.Render(gridTable(grid))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render timetable pdf")
	}
	return data, nil
}

func gridTable(grid *models.TimetableGrid) export.Table {
	headers := append([]string{"Student"}, grid.Days...)
	rows := make([][]string, 0, len(grid.Rows))
	for _, row := range grid.Rows {
		cells := make([]string, 0, len(headers))
		cells = append(cells, row.StudentName)
		for _, day := range grid.Days {
			cell := row.Days[day]
			if !cell.Present {
				cells = append(cells, "-")
				continue
			}
			cells = append(cells, cell.RawGrade)
		}
		rows = append(rows, cells)
	}
	return export.Table{
		Title:   "Timetable " + grid.From.String() + " to " + grid.To.String(),
		Headers: headers,
		Rows:    rows,
	}
}
