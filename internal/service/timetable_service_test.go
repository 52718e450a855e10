package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/models"
	"github.com/halaqat-app/progress-api/pkg/config"
	appErrors "github.com/halaqat-app/progress-api/pkg/errors"
)

type rosterStub struct {
	students []models.AssignedStudent
}

func (s rosterStub) ListStudentsByTeacher(ctx context.Context, teacherID string) ([]models.AssignedStudent, error) {
	return s.students, nil
}

type rangeStub struct {
	entries []models.LedgerEntry
}

func (s rangeStub) Range(ctx context.Context, studentIDs []string, from, to models.Date) ([]models.LedgerEntry, error) {
	return s.entries, nil
}

func newTimetableService(roster rosterStub, entries rangeStub) *TimetableService {
	return NewTimetableService(roster, entries, nil, config.TimetableConfig{MaxRangeDays: 31}, zap.NewNop())
}

func TestTimetableProjectDenseGrid(t *testing.T) {
	roster := rosterStub{students: []models.AssignedStudent{
		{StudentID: "st1", StudentName: "Ahmad"},
		{StudentID: "st2", StudentName: "Bilal"},
	}}
	entries := rangeStub{entries: []models.LedgerEntry{
		{
			StudentID:  "st1",
			StageID:    "s1",
			PageNumber: 2,
			Outcome:    models.OutcomeAdvance,
			RawGrade:   "جيد",
			OccurredOn: models.NewDate(2026, time.March, 2),
		},
	}}
	svc := newTimetableService(roster, entries)

	grid, err := svc.Project(context.Background(), "t1",
		models.NewDate(2026, time.March, 1), models.NewDate(2026, time.March, 3))
	require.NoError(t, err)

	require.Len(t, grid.Days, 3)
	require.Len(t, grid.Rows, 2)

	// Every (student, day) pair has a cell; days without entries are absent.
	for _, row := range grid.Rows {
		assert.Len(t, row.Days, 3)
	}
	marked := grid.Rows[0].Days["2026-03-02"]
	assert.True(t, marked.Present)
	assert.Equal(t, models.OutcomeAdvance, marked.Outcome)
	assert.Equal(t, 2, marked.Page)

	assert.False(t, grid.Rows[0].Days["2026-03-01"].Present)
	assert.False(t, grid.Rows[1].Days["2026-03-02"].Present)
}

func TestTimetableProjectLatestEntryPerDayWins(t *testing.T) {
	roster := rosterStub{students: []models.AssignedStudent{{StudentID: "st1", StudentName: "Ahmad"}}}
	day := models.NewDate(2026, time.March, 2)
	entries := rangeStub{entries: []models.LedgerEntry{
		{StudentID: "st1", Outcome: models.OutcomeHold, RawGrade: "إعادة", OccurredOn: day},
		{StudentID: "st1", Outcome: models.OutcomeAdvance, RawGrade: "جيد", OccurredOn: day},
	}}
	svc := newTimetableService(roster, entries)

	grid, err := svc.Project(context.Background(), "t1", day, day)
	require.NoError(t, err)
	cell := grid.Rows[0].Days["2026-03-02"]
	assert.Equal(t, models.OutcomeAdvance, cell.Outcome)
	assert.Equal(t, "جيد", cell.RawGrade)
}

func TestTimetableProjectEmptyRosterStillReturnsGrid(t *testing.T) {
	svc := newTimetableService(rosterStub{}, rangeStub{})

	grid, err := svc.Project(context.Background(), "t1",
		models.NewDate(2026, time.March, 1), models.NewDate(2026, time.March, 2))
	require.NoError(t, err)
	assert.Empty(t, grid.Rows)
	assert.Len(t, grid.Days, 2)
}

func TestTimetableProjectRejectsInvertedRange(t *testing.T) {
	svc := newTimetableService(rosterStub{}, rangeStub{})

	_, err := svc.Project(context.Background(), "t1",
		models.NewDate(2026, time.March, 5), models.NewDate(2026, time.March, 1))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableProjectRejectsOversizedRange(t *testing.T) {
	svc := newTimetableService(rosterStub{}, rangeStub{})

	_, err := svc.Project(context.Background(), "t1",
		models.NewDate(2026, time.January, 1), models.NewDate(2026, time.June, 1))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableExportCSV(t *testing.T) {
	roster := rosterStub{students: []models.AssignedStudent{{StudentID: "st1", StudentName: "Ahmad"}}}
	day := models.NewDate(2026, time.March, 2)
	entries := rangeStub{entries: []models.LedgerEntry{
		{StudentID: "st1", Outcome: models.OutcomeAdvance, RawGrade: "جيد", OccurredOn: day},
	}}
	svc := newTimetableService(roster, entries)

	data, err := svc.ExportCSV(context.Background(), "t1", day, day.AddDays(1))
	require.NoError(t, err)

	content := string(data)
	assert.True(t, strings.HasPrefix(content, "Student,2026-03-02,2026-03-03"))
	assert.Contains(t, content, "Ahmad,جيد,-")
}

func TestTimetableExportPDF(t *testing.T) {
	roster := rosterStub{students: []models.AssignedStudent{{StudentID: "st1", StudentName: "Ahmad"}}}
	day := models.NewDate(2026, time.March, 2)
	svc := newTimetableService(roster, rangeStub{})

	data, err := svc.ExportPDF(context.Background(), "t1", day, day)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
