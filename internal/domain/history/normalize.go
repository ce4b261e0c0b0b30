package history

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"

	"github.com/Togather-Foundation/historia/internal/kg/wikidata"
	"github.com/Togather-Foundation/historia/internal/sanitize"
)

// DefaultMinYear is the earliest start year admitted by a paged run.
const DefaultMinYear = 1500

// RejectReason names why a binding was not admitted. Values double as
// metric labels.
type RejectReason string

const (
	ReasonMissingStart  RejectReason = "missing_start"
	ReasonInvalidStart  RejectReason = "invalid_start"
	ReasonBeforeMinYear RejectReason = "before_min_year"
	ReasonNoLocation    RejectReason = "no_location"
)

// Outcome is the result of normalizing one binding: Admitted or Rejected.
type Outcome interface {
	isOutcome()
}

type Admitted struct {
	Record ExternalRecord
}

type Rejected struct {
	ExternalID string
	Reason     RejectReason
	Detail     string
}

func (Admitted) isOutcome() {}
func (Rejected) isOutcome() {}

// NormalizeOptions holds the business filters applied by Normalize.
// MinYear <= 0 disables the year filter.
type NormalizeOptions struct {
	MinYear int
}

var errEmptyDate = errors.New("empty date")

var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

var dateparserConfig = &dateparser.Configuration{
	Languages:       []string{"en"},
	DefaultTimezone: time.UTC,
}

// ParseStart parses a date or timestamp independently of locale. ISO 8601
// forms are tried first; free text falls back to an English date parser.
func ParseStart(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, errEmptyDate
	}
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}

	dt, err := dateparser.Parse(dateparserConfig, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", text, err)
	}
	if dt.Time.IsZero() {
		return time.Time{}, fmt.Errorf("parse date %q: no date found", text)
	}
	return dt.Time.UTC(), nil
}

// ParseEnd is ParseStart for the optional end; failures yield nil.
func ParseEnd(text string) *time.Time {
	t, err := ParseStart(text)
	if err != nil {
		return nil
	}
	return &t
}

// ParsePoint reads a WKT "Point(<lon> <lat>)" literal. Anything other than
// two finite numeric tokens yields ok=false. Ranges are not checked.
func ParsePoint(text string) (lat, lon float64, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "Point(") || !strings.HasSuffix(text, ")") {
		return 0, 0, false
	}
	fields := strings.Fields(text[len("Point(") : len(text)-1])
	if len(fields) != 2 {
		return 0, 0, false
	}

	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0, 0, false
	}
	lat, err = strconv.ParseFloat(fields[1], 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return 0, 0, false
	}
	return lat, lon, true
}

// Admissible reports whether rec carries a country or a full coordinate pair.
func Admissible(rec ExternalRecord) bool {
	if strings.TrimSpace(rec.CountryLabel) != "" || strings.TrimSpace(rec.CountryID) != "" {
		return true
	}
	return rec.Latitude != nil && rec.Longitude != nil
}

// Normalize turns one query binding into an Outcome. It never fails.
func Normalize(b wikidata.Binding, opts NormalizeOptions) Outcome {
	id := wikidata.EntityID(b.Field("item"))

	startText := b.Field("start")
	if strings.TrimSpace(startText) == "" {
		return Rejected{ExternalID: id, Reason: ReasonMissingStart}
	}
	start, err := ParseStart(startText)
	if err != nil {
		return Rejected{ExternalID: id, Reason: ReasonInvalidStart, Detail: err.Error()}
	}
	if opts.MinYear > 0 && start.Year() < opts.MinYear {
		return Rejected{
			ExternalID: id,
			Reason:     ReasonBeforeMinYear,
			Detail:     fmt.Sprintf("year %d before %d", start.Year(), opts.MinYear),
		}
	}

	rec := ExternalRecord{
		ExternalID:   id,
		Label:        sanitize.Text(b.Field("itemLabel")),
		Description:  sanitize.Text(b.Field("itemDescription")),
		StartTime:    start,
		EndTime:      ParseEnd(b.Field("end")),
		CountryLabel: sanitize.Text(b.Field("countryLabel")),
		CountryCode:  NormalizeCountryCode(b.Field("countryCode")),
		Geometry:     strings.TrimSpace(b.Field("coord")),
	}
	if country := b.Field("country"); country != "" {
		rec.CountryID = wikidata.EntityID(country)
	}
	if lat, lon, ok := ParsePoint(rec.Geometry); ok {
		rec.Latitude = &lat
		rec.Longitude = &lon
	}

	if !Admissible(rec) {
		return Rejected{ExternalID: id, Reason: ReasonNoLocation}
	}
	return Admitted{Record: rec}
}
