// Package csvfile reads bins from a CSV export with the header
// id,latitude,longitude,fill_level_percent[,priority].
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"wasteroute/internal/integrations"
	"wasteroute/internal/model"
)

var _ integrations.BinSource = Adapter{}

type Adapter struct {
	Path string
}

func (a Adapter) Name() string { return "csv-file" }

func (a Adapter) FetchBins(ctx context.Context) ([]model.BinInput, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(ctx, f)
}

// Parse reads bins from r. Columns are matched by header name, so their order is free.
func Parse(ctx context.Context, r io.Reader) ([]model.BinInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv: empty input")
		}
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"id", "latitude", "longitude", "fill_level_percent"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("csv: missing column %q", req)
		}
	}

	var out []model.BinInput
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		num := func(name string) (float64, error) {
			v, err := strconv.ParseFloat(field(name), 64)
			if err != nil {
				return 0, fmt.Errorf("csv line %d: %s: %w", line, name, err)
			}
			return v, nil
		}
		lat, err := num("latitude")
		if err != nil {
			return nil, err
		}
		lng, err := num("longitude")
		if err != nil {
			return nil, err
		}
		fill, err := num("fill_level_percent")
		if err != nil {
			return nil, err
		}
		out = append(out, model.BinInput{ID: field("id"), Latitude: lat, Longitude: lng, FillLevel: fill, Priority: field("priority")})
	}
	return out, nil
}
