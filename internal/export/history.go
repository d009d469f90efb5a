// internal/export/history.go
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jumpfinance/jumpdefi/internal/vault"
)

// HistoryHeaders are the columns of the APR history file.
var HistoryHeaders = []string{"taken_at", "contract", "vault_id", "name", "apr", "fill_percent", "status"}

// HistoryWriter appends APR observations to a CSV file. It is safe for
// concurrent use and flushes periodically.
type HistoryWriter struct {
	mu       sync.Mutex
	writer   *csv.Writer
	file     *os.File
	ticker   *time.Ticker
	done     chan struct{}
	logger   *zap.Logger
	filePath string

	writtenRecords uint64
	flushCount     uint64
}

// NewHistoryWriter opens filePath in append mode, writing the header when
// the file is new.
func NewHistoryWriter(filePath string, flushInterval time.Duration, logger *zap.Logger) (*HistoryWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	hw := &HistoryWriter{
		writer:   csv.NewWriter(file),
		file:     file,
		ticker:   time.NewTicker(flushInterval),
		done:     make(chan struct{}),
		logger:   logger.Named("history"),
		filePath: filePath,
	}

	if stat.Size() == 0 {
		err := hw.writer.Write(HistoryHeaders)
		hw.writer.Flush()
		if err == nil {
			err = hw.writer.Error()
		}
		if err != nil {
			hw.ticker.Stop()
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	go hw.periodicFlush()
	return hw, nil
}

// WriteRows appends one record per row, stamped with at.
func (hw *HistoryWriter) WriteRows(rows []vault.Row, at time.Time) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	stamp := at.UTC().Format(time.RFC3339)
	for _, r := range rows {
		rec := []string{stamp, r.Contract, fmt.Sprint(r.VaultID), r.Name, r.APR, r.Fill, string(r.Status)}
		if err := hw.writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		hw.writtenRecords++
	}
	return nil
}

// Flush forces a write of any buffered data
func (hw *HistoryWriter) Flush() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.flushLocked()
}

func (hw *HistoryWriter) flushLocked() error {
	hw.writer.Flush()
	if err := hw.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := hw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	hw.flushCount++
	return nil
}

func (hw *HistoryWriter) periodicFlush() {
	for {
		select {
		case <-hw.ticker.C:
			if err := hw.Flush(); err != nil {
				hw.logger.Error("Periodic flush failed",
					zap.String("file", hw.filePath),
					zap.Error(err))
			}
		case <-hw.done:
			return
		}
	}
}

// Close stops the flusher and writes out what is buffered.
func (hw *HistoryWriter) Close() error {
	close(hw.done)
	hw.ticker.Stop()

	hw.mu.Lock()
	defer hw.mu.Unlock()

	if err := hw.flushLocked(); err != nil {
		hw.file.Close()
		return err
	}
	if err := hw.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	hw.logger.Info("History writer closed",
		zap.String("file", hw.filePath),
		zap.Uint64("written_records", hw.writtenRecords),
		zap.Uint64("flush_count", hw.flushCount))
	return nil
}

// Stats returns the number of records written and flushes done.
func (hw *HistoryWriter) Stats() (records, flushes uint64) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.writtenRecords, hw.flushCount
}
