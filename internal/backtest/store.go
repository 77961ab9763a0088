package backtest

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
)

var ledgerHeader = []string{"symbol", "timeframe", "timestamp", "price", "next_close", "success"}

// Store persists backtest ledgers as CSV files named
// "{runID}_{SYMBOL}_{timeframe}.csv" and serves past runs back with
// per-file metrics.
type Store struct {
	dir string
}

// NewStore creates the ledger directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create ledger dir")
	}
	return &Store{dir: dir}, nil
}

// NewRunID returns a run identifier from the current UTC time, sortable
// lexicographically.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102_150405")
}

// Save writes a non-empty ledger to disk and returns the file name.
func (s *Store) Save(runID string, res Result) (string, error) {
	name := runID + "_" + strings.ReplaceAll(res.Summary.Symbol, "/", "") + "_" + res.Summary.Timeframe + ".csv"
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", errors.Wrap(err, "create ledger file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ledgerHeader); err != nil {
		return "", errors.Wrap(err, "write ledger header")
	}
	for _, e := range res.Ledger {
		row := []string{
			e.Symbol,
			e.Timeframe,
			e.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(e.Price, 'f', -1, 64),
			strconv.FormatFloat(e.NextClose, 'f', -1, 64),
			strconv.FormatBool(e.Success),
		}
		if err := w.Write(row); err != nil {
			return "", errors.Wrap(err, "write ledger row")
		}
	}
	w.Flush()
	return name, errors.Wrap(w.Error(), "flush ledger")
}

// HistoryMetrics summarizes one persisted ledger file.
type HistoryMetrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	AvgProfitLoss float64 `json:"avg_profit_loss"`
}

// HistoryEntry describes one past backtest run.
type HistoryEntry struct {
	File      string         `json:"file"`
	Timestamp string         `json:"timestamp"`
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	Metrics   HistoryMetrics `json:"metrics"`
}

// History lists persisted runs, newest first.
func (s *Store) History() ([]HistoryEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "list ledger dir")
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		// {date}_{time}_{SYMBOL}_{timeframe}.csv
		parts := strings.Split(strings.TrimSuffix(name, ".csv"), "_")
		if len(parts) < 4 {
			continue
		}
		ledger, err := s.readLedger(name)
		if err != nil {
			continue
		}
		out = append(out, HistoryEntry{
			File:      name,
			Timestamp: parts[0] + "_" + parts[1],
			Symbol:    parts[2],
			Timeframe: parts[3],
			Metrics:   summarize(ledger),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// LedgerStats summarizes a ledger file for the read endpoint.
type LedgerStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	Accuracy      float64 `json:"accuracy"`
}

// Read parses one ledger file into generic rows plus statistics.
func (s *Store) Read(filename string) ([]map[string]string, LedgerStats, error) {
	rows, err := s.readLedger(filepath.Base(filename))
	if err != nil {
		return nil, LedgerStats{}, err
	}
	stats := LedgerStats{TotalTrades: len(rows)}
	for _, row := range rows {
		if row["success"] == "true" {
			stats.WinningTrades++
		}
	}
	if stats.TotalTrades > 0 {
		stats.Accuracy = math.Round(10000*float64(stats.WinningTrades)/float64(stats.TotalTrades)) / 100
	}
	return rows, stats, nil
}

func (s *Store) readLedger(name string) ([]map[string]string, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, errors.Wrap(err, "open ledger")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "read ledger")
	}
	if len(records) == 0 {
		return nil, nil
	}
	cols := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(cols))
		for i, col := range cols {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func summarize(rows []map[string]string) HistoryMetrics {
	m := HistoryMetrics{TotalTrades: len(rows)}
	sum := 0.0
	for _, row := range rows {
		if row["success"] == "true" {
			m.WinningTrades++
		}
		price, err1 := strconv.ParseFloat(row["price"], 64)
		next, err2 := strconv.ParseFloat(row["next_close"], 64)
		if err1 == nil && err2 == nil {
			sum += next - price
		}
	}
	if m.TotalTrades > 0 {
		m.AvgProfitLoss = math.Round(100*sum/float64(m.TotalTrades)) / 100
	}
	return m
}
