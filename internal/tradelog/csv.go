// Package tradelog persists simulated trades as append-only CSV files,
// one file per (symbol, timeframe). Rows are never rewritten, reordered,
// or compacted; the header is written exactly once, when the file is
// created.
package tradelog

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"papertrader/internal/model"
)

// header mirrors the TradeRecord field names. The pnl column is empty on
// buy rows.
var header = []string{"symbol", "type", "price", "size", "quantity", "pnl", "timestamp"}

// CSVLogger writes per-(symbol, timeframe) trade logs under a directory.
// Append must be called while the caller holds the live-state lock; the
// logger itself does not lock.
type CSVLogger struct {
	dir string
}

// NewCSVLogger creates the log directory if needed.
func NewCSVLogger(dir string) (*CSVLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create trade log dir")
	}
	return &CSVLogger{dir: dir}, nil
}

// FileName returns the log file name for a (symbol, timeframe) key,
// e.g. "BTCUSDT_1h.csv".
func FileName(symbol, timeframe string) string {
	return strings.ReplaceAll(symbol, "/", "") + "_" + timeframe + ".csv"
}

// Append writes rec as a new row, creating the file with a header first
// if it does not exist yet.
func (l *CSVLogger) Append(symbol, timeframe string, rec model.TradeRecord) error {
	path := filepath.Join(l.dir, FileName(symbol, timeframe))
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open trade log")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return errors.Wrap(err, "write header")
		}
	}

	pnl := ""
	if rec.PnL != nil {
		pnl = formatFloat(*rec.PnL)
	}
	row := []string{
		rec.Symbol,
		rec.Type,
		formatFloat(rec.Price),
		formatFloat(rec.Size),
		formatFloat(rec.Quantity),
		pnl,
		rec.Timestamp.UTC().Format(time.RFC3339),
	}
	if err := w.Write(row); err != nil {
		return errors.Wrap(err, "write record")
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flush trade log")
}

// List returns the log file names in the directory, newest-named first.
func (l *CSVLogger) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list trade logs")
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// Stats summarizes a live trade log: sells count as completed round trips.
type Stats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winRate"`
}

// Read parses one log file into generic rows plus summary statistics.
// filename is reduced to its base name, so path traversal is not possible.
func (l *CSVLogger) Read(filename string) ([]map[string]string, Stats, error) {
	path := filepath.Join(l.dir, filepath.Base(filename))
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "open trade log")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "read trade log")
	}
	if len(records) == 0 {
		return nil, Stats{}, nil
	}

	cols := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	sells := 0
	for _, rec := range records[1:] {
		row := make(map[string]string, len(cols))
		for i, col := range cols {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		if row["type"] == "sell" {
			sells++
		}
		rows = append(rows, row)
	}

	stats := Stats{TotalTrades: len(rows), Wins: sells, Losses: len(rows) - sells}
	if stats.TotalTrades > 0 {
		stats.WinRate = round2(100 * float64(stats.Wins) / float64(stats.TotalTrades))
	}
	return rows, stats, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
