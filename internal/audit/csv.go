package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CSVHeader is the first row of the message log file.
var CSVHeader = []string{"Timestamp", "Device ID", "Metric", "Value", "Ticket Status", "Ticket Number", "Message"}

// CSVLog appends entries to a CSV file.
type CSVLog struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// OpenCSVLog opens path for appending and writes the header when the file is new.
func OpenCSVLog(path string) (*CSVLog, error) {
	if path == "" {
		return nil, errors.New("csv log: empty path")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	log := &CSVLog{file: file, w: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := log.write(CSVHeader); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	return log, nil
}

// Log implements Logger.
func (l *CSVLog) Log(_ context.Context, entry Entry) error {
	if l == nil {
		return errors.New("csv log: closed")
	}
	return l.write([]string{
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.DeviceID,
		entry.Metric,
		entry.ValueString(),
		entry.TicketStatus,
		entry.TicketNumberString(),
		entry.Message,
	})
}

func (l *CSVLog) write(record []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("csv log: closed")
	}
	if err := l.w.Write(record); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the file.
func (l *CSVLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.w.Flush()
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadCSV parses a message log. The header row and blank lines are skipped.
func ReadCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	var out []Entry
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && len(record) > 0 && record[0] == CSVHeader[0] {
			continue
		}
		if len(record) < len(CSVHeader) {
			return nil, fmt.Errorf("csv log: line %d: expected %d fields, got %d", line, len(CSVHeader), len(record))
		}
		entry, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("csv log: line %d: %w", line, err)
		}
		out = append(out, entry)
	}
}

func parseRecord(record []string) (Entry, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(record[0]))
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Timestamp:    ts.UTC(),
		DeviceID:     record[1],
		Metric:       record[2],
		Value:        math.NaN(),
		TicketStatus: record[4],
		Message:      record[6],
	}
	if raw := strings.TrimSpace(record[3]); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			entry.Value = value
		}
	}
	if raw := strings.TrimSpace(record[5]); raw != "" {
		number, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Entry{}, err
		}
		entry.TicketNumber = number
	}
	return entry, nil
}
