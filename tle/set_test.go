package tle

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSetThreeLine(t *testing.T) {
	input := "ISS (ZARYA)\n" + issLine1 + "\r\n\n" + issLine2 + "\n"
	set, err := ParseSet(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSet: %v", err)
	}
	if set.Name != "ISS (ZARYA)" {
		t.Fatalf("Name = %q, want ISS (ZARYA)", set.Name)
	}
	if set.Elements.CatalogNumber != 25544 {
		t.Fatalf("CatalogNumber = %d, want 25544", set.Elements.CatalogNumber)
	}
}

func TestParseSetTwoLineAndZeroPrefixedName(t *testing.T) {
	set, err := ParseSet(strings.NewReader(issLine1 + "\n" + issLine2))
	if err != nil {
		t.Fatalf("ParseSet two-line: %v", err)
	}
	if set.Name != "" {
		t.Fatalf("Name = %q, want empty", set.Name)
	}

	set, err = ParseSet(strings.NewReader("0 VANGUARD 1\n" + vanguardLine1 + "\n" + vanguardLine2 + "\n"))
	if err != nil {
		t.Fatalf("ParseSet 3LE: %v", err)
	}
	if set.Name != "VANGUARD 1" {
		t.Fatalf("Name = %q, want VANGUARD 1", set.Name)
	}
}

func TestParseSetErrors(t *testing.T) {
	if _, err := ParseSet(strings.NewReader(issLine1 + "\n")); !errors.Is(err, ErrFormat) {
		t.Fatalf("single line: error = %v, want ErrFormat", err)
	}
	bad := "NAME\n" + issLine1[:68] + "0\n" + issLine2 + "\n"
	if _, err := ParseSet(strings.NewReader(bad)); !errors.Is(err, ErrChecksum) {
		t.Fatalf("bad checksum: error = %v, want ErrChecksum", err)
	}
}
