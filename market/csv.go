package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSV layout:
//
//	time,open,high,low,close,volume
//
// time is RFC3339, RFC3339Nano or unix seconds/milliseconds. A single
// header row starting with "time" (or "timestamp") is allowed and empty
// rows are skipped.
var csvHeader = []string{"time", "open", "high", "low", "close", "volume"}

// ReadCSV parses bars from r. Rows are returned in file order.
func ReadCSV(r io.Reader) (Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		out  Series
		line int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 {
			h := strings.ToLower(strings.TrimSpace(row[0]))
			if h == "time" || h == "timestamp" {
				continue
			}
		}
		b, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, b)
	}
}

func parseBarRow(row []string) (Bar, error) {
	if len(row) < 6 {
		return Bar{}, fmt.Errorf("want 6 columns, got %d", len(row))
	}
	t, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return Bar{}, err
	}

	var v [5]float64
	for i := range v {
		field := strings.TrimSpace(row[i+1])
		v[i], err = strconv.ParseFloat(field, 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad %s %q: %w", csvHeader[i+1], field, err)
		}
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return Bar{}, fmt.Errorf("bad %s %q: not a finite number", csvHeader[i+1], field)
		}
	}
	return Bar{Time: t, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

func parseTime(ts string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC(), nil
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q", ts)
	}
	// anything past year 2286 in seconds is really milliseconds
	if n > 9_999_999_999 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}

// WriteCSV writes bars with a header row.
func WriteCSV(w io.Writer, s Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range s {
		err := cw.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			f(b.Open),
			f(b.High),
			f(b.Low),
			f(b.Close),
			f(b.Volume),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// LoadCSV reads a bar file from disk.
func LoadCSV(path string) (Series, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	s, err := ReadCSV(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SaveCSV writes bars to path, replacing any existing file.
func SaveCSV(path string, s Series) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(fh, s); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// CSVSource serves bars from a local file. Symbol and timeframe in the
// request are informational; the file is assumed to hold one instrument.
type CSVSource struct {
	Path string
}

func (c CSVSource) Name() string { return "csv" }

func (c CSVSource) Fetch(ctx context.Context, req FetchRequest) (Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := LoadCSV(c.Path)
	if err != nil {
		return nil, err
	}
	return Normalize(s).Between(req.Start, req.End), nil
}
