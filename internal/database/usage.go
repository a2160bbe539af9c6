package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DayKey formats a timestamp as the UTC calendar-day key used by UsageCounter.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// GetCount returns the subject's operation count for the given day.
// A missing row reads as zero.
func GetCount(subjectKind, subjectID, day string) (int64, error) {
	var counter UsageCounter
	err := DB.Where("subject_kind = ? AND subject_id = ? AND day = ?",
		subjectKind, subjectID, day).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage counter: %w", err)
	}
	return counter.Count, nil
}

// IncrementCount atomically creates-or-increments the subject's counter for
// the given day. Concurrent first operations of a day must all be counted, so
// this is a single upsert rather than a read followed by a write.
func IncrementCount(subjectKind, subjectID, day string) error {
	err := DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subject_kind"}, {Name: "subject_id"}, {Name: "day"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("count + 1"),
		}),
	}).Create(&UsageCounter{
		SubjectKind: subjectKind,
		SubjectID:   subjectID,
		Day:         day,
		Count:       1,
	}).Error
	if err != nil {
		return fmt.Errorf("increment usage counter: %w", err)
	}
	return nil
}

// AppendOperation writes one immutable operation log entry.
func AppendOperation(entry OperationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("append operation log: %w", err)
	}
	return nil
}
