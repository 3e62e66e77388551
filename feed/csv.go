package feed

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
	"time"

	"github.com/evdnx/gotrend/types"
)

var csvHeader = []string{"date", "symbol", "open", "high", "low", "close", "volume"}

// CSV replays a bar file with the columns date,symbol,open,high,low,close,volume.
// Rows may come in any order; they are grouped by date.
type CSV struct {
	ticks []types.Tick
	pos   int
}

// OpenCSV reads the whole file at path.
func OpenCSV(path string, symbols []string) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()
	return NewCSV(f, symbols)
}

// NewCSV parses r. Bars for symbols outside symbols fail with ErrUnknownSymbol.
func NewCSV(r io.Reader, symbols []string) (*CSV, error) {
	known := universe(symbols)
	rd := csv.NewReader(r)
	rd.FieldsPerRecord = len(csvHeader)
	rd.TrimLeadingSpace = true

	head, err := rd.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range csvHeader {
		if !strings.EqualFold(strings.TrimSpace(head[i]), col) {
			return nil, fmt.Errorf("header column %d: want %q, got %q", i+1, col, head[i])
		}
	}

	var bars []types.Bar
	for line := 2; ; line++ {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !known[b.Symbol] {
			return nil, fmt.Errorf("line %d: %s: %w", line, b.Symbol, ErrUnknownSymbol)
		}
		bars = append(bars, b)
	}
	return &CSV{ticks: group(bars)}, nil
}

func parseRow(rec []string) (types.Bar, error) {
	day, err := time.Parse(dayLayout, rec[0])
	if err != nil {
		return types.Bar{}, fmt.Errorf("date: %w", err)
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(rec[i+2], 64)
		if err != nil {
			return types.Bar{}, fmt.Errorf("%s: %w", csvHeader[i+2], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Bar{}, fmt.Errorf("%s must be finite, got %v", csvHeader[i+2], v)
		}
		vals[i] = v
	}
	if vals[3] <= 0 {
		return types.Bar{}, fmt.Errorf("close must be positive, got %v", vals[3])
	}
	return types.Bar{
		Symbol: strings.ToUpper(rec[1]),
		Time:   day,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Len is the number of sessions in the file.
func (c *CSV) Len() int { return len(c.ticks) }

func (c *CSV) Next(ctx context.Context) (types.Tick, error) {
	if err := ctx.Err(); err != nil {
		return types.Tick{}, err
	}
	if c.pos >= len(c.ticks) {
		return types.Tick{}, io.EOF
	}
	tk := c.ticks[c.pos]
	c.pos++
	return tk, nil
}
