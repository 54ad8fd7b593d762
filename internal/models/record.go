package models

import (
	"fmt"
	"time"
)

// Category identifies the source family a raw record belongs to
type Category string

const (
	CategoryEnrolment   Category = "enrolment"
	CategoryDemographic Category = "demographic"
	CategoryBiometric   Category = "biometric"
)

// Categories lists the source families in merge order
var Categories = []Category{CategoryEnrolment, CategoryDemographic, CategoryBiometric}

// Valid reports whether c is one of the known source families
func (c Category) Valid() bool {
	switch c {
	case CategoryEnrolment, CategoryDemographic, CategoryBiometric:
		return true
	}
	return false
}

// Age bands used by the loader when expanding wide CSV rows
const (
	BandAge0To5   = "0_5"
	BandAge5To17  = "5_17"
	BandAge18Plus = "18_plus"
	BandAge17Plus = "17_plus"
)

// RawRecord is a single source observation: one row and one age band
type RawRecord struct {
	Date        time.Time `json:"date"`
	StateRaw    string    `json:"state_raw"`
	DistrictRaw string    `json:"district_raw"`
	Category    Category  `json:"category"`
	AgeBand     string    `json:"age_band"`
	Count       int64     `json:"count"`
}

// Period is a calendar year-month
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// PeriodOf truncates t to its year-month
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses the YYYY-MM form produced by Period.String
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

// Prev returns the preceding calendar month
func (p Period) Prev() Period {
	if p.Month == time.January {
		return Period{Year: p.Year - 1, Month: time.December}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Before reports whether p is strictly earlier than o
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// IsZero reports whether the period is unset
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// MarshalText renders the period as YYYY-MM
func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses YYYY-MM
func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Index returns a monotonically increasing month number, used for trend fitting
func (p Period) Index() int {
	return p.Year*12 + int(p.Month) - 1
}
