package space

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"orthoview/pkg/volerr"
)

// TransformMarker is the line that opens the coefficient section of a
// transform file.
const TransformMarker = "Linear_Transform ="

// ParseTransform reads the 12 coefficients following the
// "Linear_Transform =" line of a transform file. The last coefficient is
// terminated by ';'.
func ParseTransform(r io.Reader) (Matrix12, error) {
	var m Matrix12

	scanner := bufio.NewScanner(r)
	found := false
	for scanner.Scan() {
		if strings.TrimRight(scanner.Text(), "\r") == TransformMarker {
			found = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return m, volerr.WrapFormat(err, "error reading transform")
	}
	if !found {
		return m, volerr.Format("transform: missing %q line", TransformMarker)
	}

	n := 0
	terminated := false
	for scanner.Scan() {
		for _, tok := range strings.Fields(scanner.Text()) {
			if terminated {
				return m, volerr.Format("transform: unexpected data after ';': %q", tok)
			}
			if n == len(m) {
				return m, volerr.Format("transform: more than %d coefficients", len(m))
			}
			if strings.HasSuffix(tok, ";") {
				if n != len(m)-1 {
					return m, volerr.Format("transform: ';' after coefficient %d, expected %d", n+1, len(m))
				}
				tok = strings.TrimSuffix(tok, ";")
				terminated = true
				if tok == "" {
					return m, volerr.Format("transform: missing last coefficient")
				}
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return m, volerr.WrapFormat(err, "transform: invalid coefficient %q", tok)
			}
			m[n] = v
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return m, volerr.WrapFormat(err, "error reading transform")
	}
	if n < len(m) {
		return m, volerr.Format("transform: expected %d coefficients, found %d", len(m), n)
	}
	if !terminated {
		return m, volerr.Format("transform: last coefficient is not terminated by ';'")
	}
	return m, nil
}

// LabelTable maps atlas intensities to label names.
type LabelTable map[int]string

// ParseLabelMapping reads a label mapping file: a "#<N>" count line
// followed by exactly N "<intensity> <label>" lines.
func ParseLabelMapping(r io.Reader) (LabelTable, error) {
	scanner := bufio.NewScanner(r)

	count := -1
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			return nil, volerr.Format("labels: line %d: expected #<count>, got %q", lineNo, line)
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
		if err != nil || n < 0 {
			return nil, volerr.Format("labels: line %d: invalid count %q", lineNo, line[1:])
		}
		count = n
		break
	}
	if count < 0 {
		if err := scanner.Err(); err != nil {
			return nil, volerr.WrapFormat(err, "error reading labels")
		}
		return nil, volerr.Format("labels: missing #<count> line")
	}

	table := make(LabelTable, count)
	entries := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case len(fields) < 2:
			return nil, volerr.Format("labels: line %d: no label", lineNo)
		case len(fields) > 2:
			return nil, volerr.Format("labels: line %d: extra data", lineNo)
		}
		if entries >= count {
			return nil, volerr.Format("labels: expected %d entries but found more", count)
		}

		intensity, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, volerr.WrapFormat(err, "labels: line %d: invalid intensity %q", lineNo, fields[0])
		}
		table[int(intensity)] = fields[1]
		entries++
	}
	if err := scanner.Err(); err != nil {
		return nil, volerr.WrapFormat(err, "error reading labels")
	}
	if entries != count {
		return nil, volerr.Format("labels: expected %d entries but only found %d", count, entries)
	}
	return table, nil
}
