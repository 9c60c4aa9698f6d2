package tle

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/signalsfoundry/orbit-tracker/model"
)

// Set is a parsed element set together with its optional title line.
type Set struct {
	Name     string
	Elements model.OrbitalElements
}

// ParseSet reads the first element set from r. Both the bare two-line form
// and the three-line form with a leading title (optionally prefixed "0 ")
// are accepted; blank lines are ignored.
func ParseSet(r io.Reader) (Set, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 3 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return Set{}, fmt.Errorf("reading TLE data: %w", err)
	}

	var name string
	switch {
	case len(lines) >= 2 && isDataLine(lines[0], '1'):
		lines = lines[:2]
	case len(lines) == 3:
		name = strings.TrimSpace(strings.TrimPrefix(lines[0], "0 "))
		lines = lines[1:]
	default:
		return Set{}, &FormatError{Reason: fmt.Sprintf("expected 2 or 3 lines, found %d", len(lines))}
	}

	el, err := Parse(lines[0], lines[1])
	if err != nil {
		return Set{}, err
	}
	return Set{Name: name, Elements: el}, nil
}

func isDataLine(line string, n byte) bool {
	line = strings.TrimSpace(line)
	return len(line) >= 2 && line[0] == n && line[1] == ' '
}
