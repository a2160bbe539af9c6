// Package report logs daily operation totals for diagnostics.
package report

import (
	"log"
	"time"

	"github.com/pdfsuite/gateway/internal/database"
	"github.com/robfig/cron/v3"
)

// Start schedules a job that logs the previous day's operation counts at
// midnight UTC. Returns the scheduler so the caller can stop it on shutdown.
func Start() *cron.Cron {
	c := cron.New(cron.WithLocation(time.UTC))
	c.AddFunc("0 0 * * *", func() {
		LogDailySummary(time.Now().UTC().AddDate(0, 0, -1))
	})
	c.Start()
	return c
}

// LogDailySummary logs per-operation success counts for the given day.
func LogDailySummary(day time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	type opCount struct {
		Operation string
		Total     int64
	}

	var counts []opCount
	err := database.DB.Model(&database.OperationLog{}).
		Where("created_at >= ? AND created_at < ? AND status = ?", start, end, database.StatusSuccess).
		Select("operation, COUNT(*) as total").
		Group("operation").
		Order("total DESC").
		Scan(&counts).Error
	if err != nil {
		log.Printf("WARNING: usage summary query failed: %v", err)
		return
	}

	if len(counts) == 0 {
		log.Printf("Usage summary %s: no operations", database.DayKey(start))
		return
	}
	for _, c := range counts {
		log.Printf("Usage summary %s: %s=%d", database.DayKey(start), c.Operation, c.Total)
	}
}
