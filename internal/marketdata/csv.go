package marketdata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CSVDir serves bars from per-ticker CSV files in a local directory, which
// keeps offline runs and fixtures fully reproducible. Price files are named
// <TICKER>.csv with a date,open,high,low,close,volume header. An optional
// <TICKER>.fundamentals.json holds dated fundamentals snapshots.
type CSVDir struct {
	dir string
}

// NewCSVDir returns a provider rooted at dir.
func NewCSVDir(dir string) *CSVDir { return &CSVDir{dir: dir} }

// PriceBars reads and filters the ticker's CSV file.
func (p *CSVDir) PriceBars(ctx context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(p.dir, ticker+".csv")
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	bars, err := readBarsCSV(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	SortBars(bars)
	return FilterBars(bars, start, end), nil
}

// FundamentalsAsOf returns the latest snapshot dated on or before asOf from
// the ticker's fundamentals file, if one exists.
func (p *CSVDir) FundamentalsAsOf(ctx context.Context, ticker string, asOf time.Time) (*Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(p.dir, ticker+".fundamentals.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoFundamentals, ticker)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var snapshots []Fundamentals
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return LatestFundamentals(snapshots, asOf)
}

// LatestFundamentals picks the most recent snapshot dated on or before asOf.
func LatestFundamentals(snapshots []Fundamentals, asOf time.Time) (*Fundamentals, error) {
	day := Day(asOf)
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].AsOf.Before(snapshots[j].AsOf) })
	var picked *Fundamentals
	for i := range snapshots {
		if Day(snapshots[i].AsOf).After(day) {
			break
		}
		picked = &snapshots[i]
	}
	if picked == nil {
		return nil, ErrNoFundamentals
	}
	out := *picked
	return &out, nil
}

func readBarsCSV(r io.Reader) ([]Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	var bars []Bar
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(record) < 6 {
			return nil, fmt.Errorf("line %d: want 6 columns, got %d", line, len(record))
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "date") {
			continue
		}
		bar, err := parseCSVBar(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseCSVBar(record []string) (Bar, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
	if err != nil {
		return Bar{}, fmt.Errorf("bad date %q: %w", record[0], err)
	}
	fields := [5]float64{}
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad column %d: %w", i+1, err)
		}
		fields[i] = v
	}
	return Bar{
		Date:   Day(date),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}
