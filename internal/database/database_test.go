package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"termin/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestNewDB_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "termin.db")

	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// tables and indexes already exist
	db, err = NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()
}

func TestNewDB_Error(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "db_err")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	logger := zerolog.New(io.Discard)
	_, err = NewDB(tmpDir, &logger)
	assert.Error(t, err)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close() // closed handle makes every call fail

	ctx := context.Background()

	t.Run("CreateBooking", func(t *testing.T) {
		assert.Error(t, db.CreateBooking(ctx, &models.Booking{Date: time.Now()}))
	})

	t.Run("SlotTaken", func(t *testing.T) {
		_, err := db.SlotTaken(ctx, time.Now(), models.TimeOfDay{Hour: 10}, 0)
		assert.Error(t, err)
	})

	t.Run("ListBookings", func(t *testing.T) {
		_, err := db.ListBookings(ctx, models.BookingFilter{})
		assert.Error(t, err)
	})

	t.Run("CountPerDay", func(t *testing.T) {
		_, err := db.CountPerDay(ctx, time.Now(), time.Now())
		assert.Error(t, err)
	})

	t.Run("UpdateBookingStatus", func(t *testing.T) {
		assert.Error(t, db.UpdateBookingStatus(ctx, 1, models.StatusPending, models.StatusConfirmed))
	})

	t.Run("CreateOutboxTask", func(t *testing.T) {
		assert.Error(t, db.CreateOutboxTask(ctx, &models.OutboxTask{}))
	})

	t.Run("UpsertTemplate", func(t *testing.T) {
		assert.Error(t, db.UpsertTemplate(ctx, &models.EmailTemplate{Key: models.TemplateBookingReceived}))
	})
}
