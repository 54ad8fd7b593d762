package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jengzang/region-insights-go/internal/models"
)

// DateLayout is the day-first date format of the source files
const DateLayout = "02-01-2006"

// Required header columns
const (
	ColumnDate     = "date"
	ColumnState    = "state"
	ColumnDistrict = "district"
)

// BandColumns maps each family's count columns to age bands
var BandColumns = map[models.Category][]BandColumn{
	models.CategoryEnrolment: {
		{"age_0_5", models.BandAge0To5},
		{"age_5_17", models.BandAge5To17},
		{"age_18_greater", models.BandAge18Plus},
	},
	models.CategoryDemographic: {
		{"demo_age_5_17", models.BandAge5To17},
		{"demo_age_17_", models.BandAge17Plus},
	},
	models.CategoryBiometric: {
		{"bio_age_5_17", models.BandAge5To17},
		{"bio_age_17_", models.BandAge17Plus},
	},
}

// BandColumn pairs a CSV header with the age band it carries
type BandColumn struct {
	Header string
	Band   string
}

// CSVSource reads one source family from a set of wide CSV files.
// Each CSV row expands to one RawRecord per age band column present. A row
// with a bad date, a blank state or an unreadable count yields a single
// record with a negative count instead.
type CSVSource struct {
	Category models.Category
	Paths    []string

	logger *slog.Logger
	mu     sync.Mutex
	err    error
}

// NewCSVSource collects every *.csv file in dir, in name order
func NewCSVSource(category models.Category, dir string, logger *slog.Logger) (*CSVSource, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown source family %q", category)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to open %s directory: %w", category, err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", category, err)
	}
	slices.Sort(paths)
	return &CSVSource{
		Category: category,
		Paths:    paths,
		logger:   logger.With("component", "loader", "family", category),
	}, nil
}

// Records streams the files. The sequence can be iterated more than once.
// I/O errors end the current file, are logged, and are reported by Err.
func (s *CSVSource) Records() iter.Seq[models.RawRecord] {
	return func(yield func(models.RawRecord) bool) {
		s.setErr(nil)
		for _, path := range s.Paths {
			cont, err := s.readFile(path, yield)
			if err != nil {
				s.logger.Error("failed to read file", "path", path, "error", err)
				s.setErr(err)
			}
			if !cont {
				return
			}
		}
	}
}

// Err returns the errors of the most recent iteration
func (s *CSVSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *CSVSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.err = nil
		return
	}
	s.err = errors.Join(s.err, err)
}

func (s *CSVSource) readFile(path string, yield func(models.RawRecord) bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return true, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return s.read(f, path, yield)
}

func (s *CSVSource) read(r io.Reader, name string, yield func(models.RawRecord) bool) (bool, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{ColumnDate, ColumnState, ColumnDistrict} {
		if _, ok := cols[required]; !ok {
			return true, fmt.Errorf("%s: missing column %q", name, required)
		}
	}

	var bands []BandColumn
	var bandIdx []int
	for _, bc := range BandColumns[s.Category] {
		if i, ok := cols[bc.Header]; ok {
			bands = append(bands, bc)
			bandIdx = append(bandIdx, i)
		}
	}
	if len(bands) == 0 {
		s.logger.Warn("file has no count columns for family", "path", name)
		return true, nil
	}

	rows, malformed := 0, 0
	counts := make([]int64, len(bands))
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return true, fmt.Errorf("%s: %w", name, err)
		}
		rows++

		date, _ := time.Parse(DateLayout, field(row, cols[ColumnDate]))
		state := field(row, cols[ColumnState])
		district := field(row, cols[ColumnDistrict])
		valid := !date.IsZero() && state != ""
		for i := range bands {
			counts[i] = parseCount(field(row, bandIdx[i]))
			valid = valid && counts[i] >= 0
		}

		// A bad row is reported once, as a single negative record, so none
		// of its bands reach the totals.
		if !valid {
			malformed++
			rec := models.RawRecord{Date: date, StateRaw: state, DistrictRaw: district, Category: s.Category, Count: -1}
			if !yield(rec) {
				return false, nil
			}
			continue
		}

		for i, bc := range bands {
			rec := models.RawRecord{
				Date:        date,
				StateRaw:    state,
				DistrictRaw: district,
				Category:    s.Category,
				AgeBand:     bc.Band,
				Count:       counts[i],
			}
			if !yield(rec) {
				return false, nil
			}
		}
	}

	s.logger.Debug("read file", "path", name, "rows", rows, "malformed_rows", malformed)
	return true, nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseCount reads a count cell. Blank cells are zero; unreadable cells are -1.
func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// Spreadsheet exports sometimes write counts as floats
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return int64(f)
	}
	return -1
}
