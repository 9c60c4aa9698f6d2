// Package tle decodes NORAD two-line element sets.
//
// Parse is strict: both lines must be exactly 69 columns after trimming,
// carry the right line numbers, pass the modulo-10 checksum and agree on
// the catalog number. Nothing is returned for input that fails any check,
// which also keeps malformed text away from go-satellite (it calls
// log.Fatal/log.Panic on fields it cannot parse).
package tle

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/orbit-tracker/model"
)

// LineLength is the fixed width of a TLE line including the checksum digit.
const LineLength = 69

// Parse validates and decodes a TLE pair.
func Parse(line1, line2 string) (model.OrbitalElements, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if err := validateLine(line1, 1); err != nil {
		return model.OrbitalElements{}, err
	}
	if err := validateLine(line2, 2); err != nil {
		return model.OrbitalElements{}, err
	}

	cat1, err := parseCatalog(line1[2:7])
	if err != nil {
		return model.OrbitalElements{}, &FormatError{Line: 1, Field: "catalog number", Reason: err.Error()}
	}
	cat2, err := parseCatalog(line2[2:7])
	if err != nil {
		return model.OrbitalElements{}, &FormatError{Line: 2, Field: "catalog number", Reason: err.Error()}
	}
	if cat1 != cat2 {
		return model.OrbitalElements{}, &FormatError{
			Reason: "catalog number " + strconv.Itoa(cat1) + " on line 1 does not match " + strconv.Itoa(cat2) + " on line 2",
		}
	}

	d := decoder{}
	el := model.OrbitalElements{
		CatalogNumber:  cat1,
		Classification: line1[7],
		Designator:     strings.TrimSpace(line1[9:17]),
		Line1:          line1,
		Line2:          line2,
		Line1Checksum:  int(line1[68] - '0'),
		Line2Checksum:  int(line2[68] - '0'),
	}

	el.Epoch = d.epoch(line1[18:20], line1[20:32])
	el.MeanMotionDot = d.float(1, "mean motion derivative", line1[33:43])
	el.MeanMotionDDot = d.impliedExp(1, "mean motion second derivative", line1[44:52])
	el.BStar = d.impliedExp(1, "bstar", line1[53:61])
	el.EphemerisType = d.intOrZero(1, "ephemeris type", line1[62:63])
	el.ElementSetNo = d.intOrZero(1, "element set number", line1[64:68])

	el.Inclination = d.float(2, "inclination", line2[8:16])
	el.RightAscension = d.float(2, "right ascension", line2[17:25])
	el.Eccentricity = d.impliedDecimal(2, "eccentricity", line2[26:33])
	el.ArgOfPerigee = d.float(2, "argument of perigee", line2[34:42])
	el.MeanAnomaly = d.float(2, "mean anomaly", line2[43:51])
	el.MeanMotion = d.float(2, "mean motion", line2[52:63])
	el.RevolutionNo = d.intOrZero(2, "revolution number", line2[63:68])

	if d.err != nil {
		return model.OrbitalElements{}, d.err
	}
	if el.Inclination < 0 || el.Inclination > 180 {
		return model.OrbitalElements{}, &FormatError{Line: 2, Field: "inclination", Reason: "out of range [0, 180]"}
	}
	return el, nil
}

// Checksum computes the modulo-10 checksum of the first 68 columns of a
// line: digits count their value, '-' counts 1, everything else 0.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func validateLine(line string, n int) error {
	if len(line) != LineLength {
		return &FormatError{Line: n, Reason: "length " + strconv.Itoa(len(line)) + ", expected 69"}
	}
	if line[0] != byte('0'+n) {
		return &FormatError{Line: n, Reason: "must start with '" + strconv.Itoa(n) + "', got '" + line[:1] + "'"}
	}
	if line[1] != ' ' {
		return &FormatError{Line: n, Reason: "column 2 must be blank"}
	}
	declared := line[68]
	if declared < '0' || declared > '9' {
		return &FormatError{Line: n, Field: "checksum", Reason: "not a digit"}
	}
	if computed := Checksum(line); computed != int(declared-'0') {
		return &ChecksumError{Line: n, Computed: computed, Declared: int(declared - '0')}
	}
	return nil
}

// parseCatalog accepts plain 5-digit catalog numbers and the Alpha-5 form
// (leading letter, I and O skipped) used for numbers above 99999.
func parseCatalog(field string) (int, error) {
	s := strings.TrimSpace(field)
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	if c := s[0]; c >= 'A' && c <= 'Z' {
		if c == 'I' || c == 'O' || len(s) != 5 {
			return 0, strconv.ErrSyntax
		}
		lead := int(c-'A') + 10
		if c > 'I' {
			lead--
		}
		if c > 'O' {
			lead--
		}
		rest, err := strconv.Atoi(s[1:])
		if err != nil {
			return 0, err
		}
		return lead*10000 + rest, nil
	}
	return strconv.Atoi(s)
}

// decoder keeps the first field error so Parse can decode every column
// without checking after each one.
type decoder struct {
	err error
}

func (d *decoder) fail(line int, field string, err error) {
	if d.err == nil {
		d.err = &FormatError{Line: line, Field: field, Reason: err.Error()}
	}
}

func (d *decoder) float(line int, field, s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		d.fail(line, field, err)
		return 0
	}
	return v
}

func (d *decoder) intOrZero(line int, field, s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		d.fail(line, field, err)
		return 0
	}
	return v
}

// impliedDecimal decodes fields such as eccentricity "0005352" -> 0.0005352.
func (d *decoder) impliedDecimal(line int, field, s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		d.fail(line, field, strconv.ErrSyntax)
		return 0
	}
	v, err := strconv.ParseFloat("0."+s, 64)
	if err != nil {
		d.fail(line, field, err)
		return 0
	}
	return v
}

// impliedExp decodes the packed exponential form " 33452-3" -> 0.33452e-3.
func (d *decoder) impliedExp(line int, field, s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) < 3 {
		d.fail(line, field, strconv.ErrSyntax)
		return 0
	}
	mantissa, exponent := strings.TrimSpace(s[:len(s)-2]), s[len(s)-2:]
	m, err := strconv.ParseFloat("0."+mantissa, 64)
	if err != nil {
		d.fail(line, field, err)
		return 0
	}
	e, err := strconv.Atoi(exponent)
	if err != nil {
		d.fail(line, field, err)
		return 0
	}
	return sign * m * math.Pow10(e)
}

// epoch converts the YY + DDD.DDDDDDDD fields to UTC.
// Years 57-99 are 19xx, 00-56 are 20xx.
func (d *decoder) epoch(yearField, dayField string) time.Time {
	year, err := strconv.Atoi(strings.TrimSpace(yearField))
	if err != nil {
		d.fail(1, "epoch year", err)
		return time.Time{}
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	day, err := strconv.ParseFloat(strings.TrimSpace(dayField), 64)
	if err != nil {
		d.fail(1, "epoch day", err)
		return time.Time{}
	}
	if day < 1 || day >= 367 {
		d.fail(1, "epoch day", strconv.ErrRange)
		return time.Time{}
	}

	// Day 1.0 is midnight on January 1st.
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := time.Duration(math.Round((day - 1) * float64(24*time.Hour) / float64(time.Microsecond)))
	return start.Add(offset * time.Microsecond)
}
