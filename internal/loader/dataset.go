package loader

import (
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/jengzang/region-insights-go/internal/models"
)

// Dataset groups the three source families found under one data directory:
// enrolment/, demographic/ and biometric/.
type Dataset struct {
	Enrolment   *CSVSource
	Demographic *CSVSource
	Biometric   *CSVSource
}

// OpenDir prepares a dataset rooted at dir
func OpenDir(dir string, logger *slog.Logger) (*Dataset, error) {
	sources := make(map[models.Category]*CSVSource, len(models.Categories))
	for _, c := range models.Categories {
		src, err := NewCSVSource(c, filepath.Join(dir, string(c)), logger)
		if err != nil {
			return nil, err
		}
		sources[c] = src
	}
	return &Dataset{
		Enrolment:   sources[models.CategoryEnrolment],
		Demographic: sources[models.CategoryDemographic],
		Biometric:   sources[models.CategoryBiometric],
	}, nil
}

// Files counts the CSV files per family
func (d *Dataset) Files() map[models.Category]int {
	return map[models.Category]int{
		models.CategoryEnrolment:   len(d.Enrolment.Paths),
		models.CategoryDemographic: len(d.Demographic.Paths),
		models.CategoryBiometric:   len(d.Biometric.Paths),
	}
}

// Err joins the read errors of all families
func (d *Dataset) Err() error {
	return errors.Join(d.Enrolment.Err(), d.Demographic.Err(), d.Biometric.Err())
}
