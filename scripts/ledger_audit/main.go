// Command ledger_audit replays every student's evaluation ledger through the
// progression rules and compares the result against the stored position.
// Drifted students are reported and, with -fix, rewritten from the ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/halaqat-app/progress-api/internal/repository"
	"github.com/halaqat-app/progress-api/internal/service"
	"github.com/halaqat-app/progress-api/pkg/config"
	"github.com/halaqat-app/progress-api/pkg/database"
)

type auditResult struct {
	StudentID    string
	StoredStage  string
	StoredPage   int
	ReplayStage  string
	ReplayPage   int
	Entries      int
	Match        bool
	Fixed        bool
	Err          error
}

func main() {
	var (
		fix     bool
		timeout time.Duration
	)
	flag.BoolVar(&fix, "fix", false, "rewrite drifted positions from the ledger")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "overall run timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	studentRepo := repository.NewStudentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	stageRepo := repository.NewStageRepository(db)
	progressRepo := repository.NewProgressRepository(db, studentRepo, ledgerRepo)
	ledgerSvc := service.NewLedgerService(ledgerRepo, stageRepo, progressRepo, nil, nil, zap.NewNop())

	var students []struct {
		ID      string `db:"id"`
		StageID string `db:"current_stage_id"`
		Page    int    `db:"current_page"`
	}
	if err := db.SelectContext(ctx, &students,
		`SELECT id, current_stage_id, current_page FROM students ORDER BY id`); err != nil {
		log.Fatalf("failed to list students: %v", err)
	}

	var results []auditResult
	drifted := 0
	for _, student := range students {
		res := auditResult{StudentID: student.ID, StoredStage: student.StageID, StoredPage: student.Page}

		entries, err := ledgerRepo.HistoryByStudent(ctx, student.ID, nil, nil)
		if err != nil {
			res.Err = fmt.Errorf("read ledger: %w", err)
			results = append(results, res)
			continue
		}
		res.Entries = len(entries)

		pos, err := ledgerSvc.Replay(ctx, entries)
		if err != nil {
			res.Err = fmt.Errorf("replay: %w", err)
			results = append(results, res)
			continue
		}
		res.ReplayStage = pos.StageID
		res.ReplayPage = pos.Page
		res.Match = pos.StageID == student.StageID && pos.Page == student.Page

		if !res.Match {
			drifted++
			if fix {
				if _, err := ledgerSvc.RebuildPosition(ctx, student.ID); err != nil {
					res.Err = fmt.Errorf("rebuild: %w", err)
				} else {
					res.Fixed = true
				}
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Students: %d, Drifted: %d\n", len(students), drifted)
	if drifted > 0 && !fix {
		os.Exit(1)
	}
}

func printReport(results []auditResult) {
	fmt.Println("Ledger Audit Report")
	fmt.Println("===================")
	for _, res := range results {
		status := "OK"
		switch {
		case res.Err != nil:
			status = "ERROR"
		case res.Fixed:
			status = "FIXED"
		case !res.Match:
			status = "DRIFT"
		}
		fmt.Printf("[%s] student %s (%d entries)\n", status, res.StudentID, res.Entries)
		if res.Err != nil {
			fmt.Printf("  Error: %v\n", res.Err)
			continue
		}
		if !res.Match {
			fmt.Printf("  Stored: stage %s page %d | Replayed: stage %s page %d\n",
				res.StoredStage, res.StoredPage, res.ReplayStage, res.ReplayPage)
		}
	}
}
