package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rahmetlabs/social-analyzer/internal/models"
)

// Writer appends content units to the local append-only log.
// The header is written with the first record of an empty file.
type Writer struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	csv        *csv.Writer
	needHeader bool
}

// Open opens (creating if needed) the log at path for appending.
// A torn trailing record left by a crash is cut off first.
func Open(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening local log %s: %w", path, err)
	}

	end, err := repairTail(file, path)
	if err != nil {
		file.Close()
		return nil, err
	}
	if _, err := file.Seek(end, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seeking local log %s: %w", path, err)
	}

	return &Writer{path: path, file: file, csv: csv.NewWriter(file), needHeader: end == 0}, nil
}

// repairTail truncates the file after the last complete, newline-terminated record
// and returns the new size
func repairTail(file *os.File, path string) (int64, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return 0, fmt.Errorf("reading local log %s: %w", path, err)
	}
	if len(data) == 0 {
		return 0, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var end int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		off := r.InputOffset()
		if err == nil && off > 0 && data[off-1] == '\n' {
			end = off
		}
	}

	if end == int64(len(data)) {
		return end, nil
	}

	logrus.Warnf("Local log %s ends with a torn record, dropping its last %d bytes", path, int64(len(data))-end)
	if err := file.Truncate(end); err != nil {
		return 0, fmt.Errorf("truncating torn record in %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("syncing local log %s: %w", path, err)
	}
	return end, nil
}

// Append durably writes one unit. It returns only after the record reached the file.
func (w *Writer) Append(unit models.ContentUnit) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("local log %s is closed", w.path)
	}
	if w.needHeader {
		if err := w.write(models.TargetColumns); err != nil {
			return fmt.Errorf("writing local log header: %w", err)
		}
		w.needHeader = false
		logrus.Infof("Created local log %s", w.path)
	}
	if err := w.write(unit.Record()); err != nil {
		return fmt.Errorf("appending %s to local log: %w", unit.CanonicalURL, err)
	}
	return nil
}

// Close closes the underlying file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	err := errors.Join(w.csv.Error(), w.file.Close())
	w.file = nil
	return err
}

func (w *Writer) write(record []string) error {
	if err := w.csv.Write(record); err != nil {
		return err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.file.Sync()
}

// ReadAll loads every unit from the log. A missing file yields no units and no error.
// Columns are matched by header name, so logs written with an older column order still load.
func ReadAll(path string) ([]models.ContentUnit, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening local log %s: %w", path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("reading local log header: %w", err)
	}

	var units []models.ContentUnit
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Open cuts torn records, so this only hits logs written before that repair
			logrus.Warnf("Skipping unreadable record near line %d of %s: %v", line, path, err)
			continue
		}
		units = append(units, models.UnitFromRecord(header, record))
	}
	return units, nil
}
