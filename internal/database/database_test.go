package database

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pdfsuite/gateway/internal/config"
)

// SetupTestDB initializes a test database.
func SetupTestDB(t *testing.T) func() {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "gateway-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	config.Cfg.DatabasePath = filepath.Join(tmpDir, "test.db")

	if err := Init(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init database: %v", err)
	}

	return func() {
		Close()
		os.RemoveAll(tmpDir)
	}
}

func TestDatabaseInit(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	var count int64
	DB.Model(&User{}).Count(&count)
	DB.Model(&UsageCounter{}).Count(&count)
	DB.Model(&OperationLog{}).Count(&count)
}

func TestGetCountMissingRow(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	count, err := GetCount(SubjectIP, "203.0.113.7", "2026-08-31")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Count = %d, want 0 for missing row", count)
	}
}

func TestIncrementCount(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	day := "2026-08-31"
	for i := 0; i < 3; i++ {
		if err := IncrementCount(SubjectUser, "user-1", day); err != nil {
			t.Fatalf("IncrementCount failed: %v", err)
		}
	}

	count, err := GetCount(SubjectUser, "user-1", day)
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}

	// A different day gets its own row
	if err := IncrementCount(SubjectUser, "user-1", "2026-09-01"); err != nil {
		t.Fatalf("IncrementCount failed: %v", err)
	}
	count, _ = GetCount(SubjectUser, "user-1", "2026-09-01")
	if count != 1 {
		t.Errorf("Count = %d, want 1 for new day", count)
	}
}

func TestIncrementCountConcurrent(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	// k concurrent first-operations of the day must all be counted. This is
	// what the upsert buys over read-then-write.
	const k = 20
	day := "2026-08-31"

	var wg sync.WaitGroup
	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- IncrementCount(SubjectIP, "198.51.100.1", day)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("IncrementCount failed: %v", err)
		}
	}

	count, err := GetCount(SubjectIP, "198.51.100.1", day)
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if count != k {
		t.Errorf("Count = %d, want %d", count, k)
	}
}

func TestAppendOperation(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	userID := "user-1"
	email := "user@example.com"
	size := int64(1024)

	entry := OperationLog{
		UserID:        &userID,
		Email:         &email,
		IPAddress:     "203.0.113.7",
		Operation:     "merge",
		Status:        StatusSuccess,
		FileSizeBytes: &size,
	}
	if err := AppendOperation(entry); err != nil {
		t.Fatalf("AppendOperation failed: %v", err)
	}

	var fetched OperationLog
	if err := DB.Where("operation = ?", "merge").First(&fetched).Error; err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if fetched.ID == "" {
		t.Error("Entry should get a generated ID")
	}
	if fetched.UserID == nil || *fetched.UserID != userID {
		t.Errorf("UserID = %v, want %s", fetched.UserID, userID)
	}
	if fetched.FileSizeBytes == nil || *fetched.FileSizeBytes != size {
		t.Errorf("FileSizeBytes = %v, want %d", fetched.FileSizeBytes, size)
	}
}

func TestDayKey(t *testing.T) {
	// 23:30 in UTC-2 is the next day in UTC
	loc := time.FixedZone("UTC-2", -2*3600)
	ts := time.Date(2026, 8, 30, 23, 30, 0, 0, loc)
	if got := DayKey(ts); got != "2026-08-31" {
		t.Errorf("DayKey = %s, want 2026-08-31", got)
	}
}
