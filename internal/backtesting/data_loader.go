package backtesting

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	simerrors "github.com/guyghost/cryptosim/internal/errors"
	"github.com/guyghost/cryptosim/internal/market"
	"github.com/shopspring/decimal"
)

// ParserVersion identifies the CSV decoding rules recorded in manifests.
const ParserVersion = "csv/1.0.0"

// DataLoader reads OHLCV bars from CSV and stamps them with one timeframe,
// tier and source.
type DataLoader struct {
	timeframe market.Timeframe
	tier      market.DataTier
	sourceID  string
}

// NewDataLoader creates a loader for bars of the given timeframe and tier.
func NewDataLoader(timeframe market.Timeframe, tier market.DataTier, sourceID string) *DataLoader {
	return &DataLoader{
		timeframe: timeframe,
		tier:      tier,
		sourceID:  sourceID,
	}
}

// LoadFromCSV loads bars from a file.
// Expected CSV format: timestamp,open,high,low,close,volume
// timestamp can be a Unix timestamp (seconds or milliseconds) or RFC3339.
// A leading header row is skipped. Rows are kept in file order.
func (dl *DataLoader) LoadFromCSV(filename string, symbol string) ([]market.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, simerrors.New(simerrors.KindConfiguration, "load_csv", filename, err)
	}
	defer file.Close()

	bars, err := dl.Load(file, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return bars, nil
}

// Load decodes bars from r. Any malformed row rejects the whole input; the
// error names the offending line.
func (dl *DataLoader) Load(r io.Reader, symbol string) ([]market.Bar, error) {
	if symbol == "" {
		return nil, simerrors.Newf(simerrors.KindConfiguration, "load_csv", "symbol", "symbol is required")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	bars := make([]market.Bar, 0)
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, simerrors.New(simerrors.KindDataValidation, "load_csv", symbol, err)
		}
		line, _ := reader.FieldPos(0)

		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}

		bar, err := dl.parseCSVRecord(record, symbol)
		if err != nil {
			return nil, simerrors.Newf(simerrors.KindDataValidation, "load_csv", symbol, "line %d: %v", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func isHeader(record []string) bool {
	if len(record) < 2 {
		return false
	}
	_, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	return err != nil
}

// parseCSVRecord parses a single CSV record into a Bar
func (dl *DataLoader) parseCSVRecord(record []string, symbol string) (market.Bar, error) {
	if len(record) < 6 {
		return market.Bar{}, fmt.Errorf("expected 6 fields, got %d", len(record))
	}

	timestamp, err := parseTimestamp(strings.TrimSpace(record[0]))
	if err != nil {
		return market.Bar{}, err
	}

	names := [...]string{"open", "high", "low", "close", "volume"}
	var values [5]decimal.Decimal
	for i, name := range names {
		v, err := decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return market.Bar{}, fmt.Errorf("invalid %s %q", name, record[i+1])
		}
		values[i] = v
	}

	return market.Bar{
		Symbol:    symbol,
		Timeframe: dl.timeframe,
		Timestamp: timestamp,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Tier:      dl.tier,
		SourceID:  dl.sourceID,
	}, nil
}

// parseTimestamp accepts Unix seconds or milliseconds, RFC3339 and a few
// common layouts. Results are in UTC.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		// 13 digits are milliseconds
		if ts > 10000000000 {
			return time.UnixMilli(ts).UTC(), nil
		}
		return time.Unix(ts, 0).UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

// GenerateSampleData produces a deterministic oscillating price walk of valid
// bars, for demos and tests.
func (dl *DataLoader) GenerateSampleData(symbol string, start time.Time, count int, basePrice float64) []market.Bar {
	step := dl.timeframe.Duration()
	if step <= 0 {
		step = time.Minute
	}

	bars := make([]market.Bar, 0, count)
	price := decimal.NewFromFloat(basePrice)
	upper := decimal.NewFromFloat(1.001)
	lower := decimal.NewFromFloat(0.999)

	for i := 0; i < count; i++ {
		// triangle wave over 40 bars plus a short jitter
		phase := i % 40
		wave := phase - 10
		if phase >= 20 {
			wave = 30 - phase
		}
		jitter := (i*7)%5 - 2
		change := decimal.New(int64(wave*8+jitter*3), -4)

		open := price
		closePrice := open.Add(open.Mul(change)).Round(2)
		high := decimal.Max(open, closePrice).Mul(upper).Round(2)
		low := decimal.Min(open, closePrice).Mul(lower).Round(2)

		bars = append(bars, market.Bar{
			Symbol:    symbol,
			Timeframe: dl.timeframe,
			Timestamp: start.Add(time.Duration(i) * step).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    decimal.NewFromInt(int64(1000 + i%500)),
			Tier:      dl.tier,
			SourceID:  dl.sourceID,
		})
		price = closePrice
	}
	return bars
}
