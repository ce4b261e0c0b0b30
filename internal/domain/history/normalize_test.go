package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/historia/internal/kg/wikidata"
)

func binding(fields map[string]string) wikidata.Binding {
	b := make(wikidata.Binding, len(fields))
	for k, v := range fields {
		b[k] = &wikidata.Value{Value: v}
	}
	return b
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOK  bool
		wantLat float64
		wantLon float64
	}{
		{name: "longitude first", input: "Point(-58.38 -34.60)", wantOK: true, wantLat: -34.60, wantLon: -58.38},
		{name: "surrounding space", input: "  Point(2.35 48.85) ", wantOK: true, wantLat: 48.85, wantLon: 2.35},
		{name: "integer tokens", input: "Point(10 20)", wantOK: true, wantLat: 20, wantLon: 10},
		{name: "single token", input: "Point(abc)"},
		{name: "non numeric", input: "Point(abc def)"},
		{name: "three tokens", input: "Point(1 2 3)"},
		{name: "missing suffix", input: "Point(1 2"},
		{name: "wrong prefix", input: "POINT(1 2)"},
		{name: "comma decimal", input: "Point(1,5 2,5)"},
		{name: "range not checked", input: "Point(190 95)", wantOK: true, wantLat: 95, wantLon: 190},
		{name: "nan", input: "Point(NaN 1)"},
		{name: "infinity", input: "Point(1 +Inf)"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lon, ok := ParsePoint(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.wantLat, lat, 1e-9)
				assert.InDelta(t, tt.wantLon, lon, 1e-9)
			}
		})
	}
}

func TestNormalizeCountryCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ARG", "AR"},
		{"arg", "AR"},
		{" FRA ", "FR"},
		{"XX", "XX"},
		{"ar", "ar"},
		{" AR", " AR"},
		{"ZZZ", "ZZZ"},
		{"zzz", "zzz"},
		{"SUN", "SU"},
		{"ABCD", "ABCD"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCountryCode(tt.input), "input %q", tt.input)
	}
}

func TestISOTable(t *testing.T) {
	assert.GreaterOrEqual(t, len(iso3to2), 249)
	seen := make(map[string]string, len(iso3to2))
	for iso3, iso2 := range iso3to2 {
		assert.Len(t, iso3, 3)
		assert.Len(t, iso2, 2)
		if other, dup := seen[iso2]; dup {
			t.Errorf("%s and %s both map to %s", other, iso3, iso2)
		}
		seen[iso2] = iso3
	}

	iso2, ok := ISO2("DEU")
	assert.True(t, ok)
	assert.Equal(t, "DE", iso2)

	_, ok = ISO2("ZZZ")
	assert.False(t, ok)
}

func TestParseStart(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"1810-05-25T00:00:00Z", time.Date(1810, 5, 25, 0, 0, 0, 0, time.UTC)},
		{"1789-07-14T12:30:00+02:00", time.Date(1789, 7, 14, 10, 30, 0, 0, time.UTC)},
		{"1848-02-22", time.Date(1848, 2, 22, 0, 0, 0, 0, time.UTC)},
		{"1917", time.Date(1917, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"25 May 1810", time.Date(1810, 5, 25, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseStart(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.True(t, tt.want.Equal(got), "input %q: got %s", tt.input, got)
	}

	_, err := ParseStart("")
	assert.Error(t, err)
	_, err = ParseStart("???")
	assert.Error(t, err)
}

func TestParseEnd(t *testing.T) {
	assert.Nil(t, ParseEnd(""))
	assert.Nil(t, ParseEnd("???"))

	end := ParseEnd("1810-05-26")
	require.NotNil(t, end)
	assert.Equal(t, 26, end.Day())
}

func TestAdmissible(t *testing.T) {
	lat, lon := -34.6, -58.38

	assert.False(t, Admissible(ExternalRecord{}), "no country and no coordinates")
	assert.False(t, Admissible(ExternalRecord{Latitude: &lat}), "half a coordinate pair")
	assert.False(t, Admissible(ExternalRecord{CountryLabel: "   "}), "blank country label")
	assert.True(t, Admissible(ExternalRecord{Latitude: &lat, Longitude: &lon}), "coordinates only")
	assert.True(t, Admissible(ExternalRecord{CountryLabel: "Argentina"}), "country label only")
	assert.True(t, Admissible(ExternalRecord{CountryID: "Q414"}), "country id only")
}

func TestNormalize_Admitted(t *testing.T) {
	b := binding(map[string]string{
		"item":            "http://www.wikidata.org/entity/Q193689",
		"itemLabel":       "May <b>Revolution</b>",
		"itemDescription": "revolution in Buenos Aires",
		"start":           "1810-05-18T00:00:00Z",
		"end":             "1810-05-25T00:00:00Z",
		"country":         "http://www.wikidata.org/entity/Q414",
		"countryLabel":    "Argentina",
		"countryCode":     "ARG",
		"coord":           "Point(-58.38 -34.60)",
	})

	out := Normalize(b, NormalizeOptions{MinYear: DefaultMinYear})
	admitted, ok := out.(Admitted)
	require.True(t, ok, "got %#v", out)

	rec := admitted.Record
	assert.Equal(t, "Q193689", rec.ExternalID)
	assert.Equal(t, "May Revolution", rec.Label)
	assert.Equal(t, "Q414", rec.CountryID)
	assert.Equal(t, "AR", rec.CountryCode)
	assert.Equal(t, 1810, rec.StartTime.Year())
	require.NotNil(t, rec.EndTime)
	assert.Equal(t, 25, rec.EndTime.Day())
	require.NotNil(t, rec.Latitude)
	require.NotNil(t, rec.Longitude)
	assert.InDelta(t, -34.60, *rec.Latitude, 1e-9)
	assert.InDelta(t, -58.38, *rec.Longitude, 1e-9)
}

func TestNormalize_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		reason RejectReason
	}{
		{
			name:   "missing start",
			fields: map[string]string{"item": "Q1", "countryLabel": "France"},
			reason: ReasonMissingStart,
		},
		{
			name:   "unparseable start",
			fields: map[string]string{"item": "Q1", "start": "???", "countryLabel": "France"},
			reason: ReasonInvalidStart,
		},
		{
			name:   "before minimum year",
			fields: map[string]string{"item": "Q1", "start": "1453-05-29", "countryLabel": "Türkiye"},
			reason: ReasonBeforeMinYear,
		},
		{
			name:   "no location",
			fields: map[string]string{"item": "Q1", "start": "1900-01-01", "coord": "Point(abc)"},
			reason: ReasonNoLocation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(binding(tt.fields), NormalizeOptions{MinYear: DefaultMinYear})
			rejected, ok := out.(Rejected)
			require.True(t, ok, "got %#v", out)
			assert.Equal(t, tt.reason, rejected.Reason)
			assert.Equal(t, "Q1", rejected.ExternalID)
		})
	}
}

func TestNormalize_MinYearDisabled(t *testing.T) {
	b := binding(map[string]string{"item": "Q12544", "start": "1453-05-29", "countryLabel": "Byzantine Empire"})

	_, ok := Normalize(b, NormalizeOptions{}).(Admitted)
	assert.True(t, ok)
}

func TestNormalize_CoordinatesOnly(t *testing.T) {
	b := binding(map[string]string{"item": "Q2", "start": "1900", "coord": "Point(10 20)"})

	admitted, ok := Normalize(b, NormalizeOptions{MinYear: DefaultMinYear}).(Admitted)
	require.True(t, ok)
	assert.Empty(t, admitted.Record.CountryLabel)
	assert.NotNil(t, admitted.Record.Latitude)
}
