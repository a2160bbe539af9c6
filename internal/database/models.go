package database

import "time"

// Subject kinds for usage counters. Anonymous traffic is tracked by client IP.
const (
	SubjectUser = "user"
	SubjectIP   = "ip"
)

// Operation outcomes recorded in the log.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type User struct {
	ID           string     `gorm:"primaryKey"`
	Email        string     `gorm:"uniqueIndex;not null"`
	Active       bool       `gorm:"not null;default:true"`
	Plan         string     `gorm:"not null;default:free"`
	ProExpiresAt *time.Time // nil = pro does not expire
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
}

// UsageCounter holds one subject's operation count for one UTC calendar day.
// Day is formatted "2006-01-02". Rows are only ever created or incremented.
type UsageCounter struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SubjectKind string `gorm:"not null;uniqueIndex:idx_subject_day"`
	SubjectID   string `gorm:"not null;uniqueIndex:idx_subject_day"`
	Day         string `gorm:"not null;uniqueIndex:idx_subject_day"`
	Count       int64  `gorm:"not null;default:0"`
}

// OperationLog is an append-only record of processed requests.
type OperationLog struct {
	ID            string    `gorm:"primaryKey"`
	UserID        *string   `gorm:"index"`
	Email         *string
	IPAddress     string    `gorm:"not null"`
	Operation     string    `gorm:"not null;index"`
	Status        string    `gorm:"not null"`
	FileSizeBytes *int64
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
}
