package grid

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"orthoview/internal/models"
	"orthoview/pkg/volerr"
)

// Parse reads a volume header.
//
// The header is line-oriented "key=value" text ("key: value" is accepted
// too). Blank lines and lines starting with '#' or '!' are ignored. Values
// are separated by spaces, commas or tabs. Keys size, start and step are
// required; order, imagerange and {x,y,z}space_direction_cosines are
// optional. A key repeated later in the file overrides the earlier value.
func Parse(header []byte) (*Grid, error) {
	props, err := readProperties(header)
	if err != nil {
		return nil, err
	}

	var spec Spec
	var haveSize, haveStart, haveStep bool

	for _, key := range props.keys {
		values := splitValues(props.values[key])

		switch key {
		case "size":
			var n [3]int
			for i := range n {
				tok, err := token(values, i, key)
				if err != nil {
					return nil, err
				}
				v, err := strconv.Atoi(tok)
				if err != nil {
					return nil, volerr.WrapFormat(err, "size: invalid integer %q", tok)
				}
				if v <= 0 {
					return nil, volerr.Format("size: values must be positive, got %d", v)
				}
				n[i] = v
			}
			spec.Size = n
			haveSize = true

		case "start":
			v, err := floats3(values, key)
			if err != nil {
				return nil, err
			}
			spec.Start = v
			haveStart = true

		case "step":
			v, err := floats3(values, key)
			if err != nil {
				return nil, err
			}
			for i := range v {
				if v[i] == 0 {
					return nil, volerr.Format("step: %s spacing must be non-zero", models.Axis(i))
				}
			}
			spec.Step = v
			haveStep = true

		case "order":
			order, err := parseOrder(values)
			if err != nil {
				return nil, err
			}
			spec.Order = order

		case "imagerange":
			low, err := floatToken(values, 0, key)
			if err != nil {
				return nil, err
			}
			high, err := floatToken(values, 1, key)
			if err != nil {
				return nil, err
			}
			if err := validImageRange(low, high); err != nil {
				return nil, err
			}
			spec.ImageRange = [2]float64{low, high}
			spec.HasImageRange = true

		case "xspace_direction_cosines", "yspace_direction_cosines", "zspace_direction_cosines":
			v, err := floats3(values, key)
			if err != nil {
				return nil, err
			}
			if spec.Cosines == [3][3]float64{} {
				spec.Cosines = Identity
			}
			spec.Cosines[axisFromKey(key)] = v

		default:
			return nil, volerr.Format("invalid key: %s", key)
		}
	}

	switch {
	case !haveSize:
		return nil, volerr.Format("missing required key: size")
	case !haveStart:
		return nil, volerr.Format("missing required key: start")
	case !haveStep:
		return nil, volerr.Format("missing required key: step")
	}

	return New(spec)
}

// properties keeps header entries in first-seen key order.
type properties struct {
	keys   []string
	values map[string]string
}

func readProperties(data []byte) (*properties, error) {
	p := &properties{values: make(map[string]string)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == '!' {
			continue
		}

		sep := strings.IndexAny(line, "=:")
		if sep <= 0 {
			return nil, volerr.Format("line %d: expected key=value, got %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])

		if _, seen := p.values[key]; !seen {
			p.keys = append(p.keys, key)
		}
		p.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, volerr.WrapFormat(err, "error reading header")
	}
	return p, nil
}

func splitValues(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
}

func token(values []string, i int, key string) (string, error) {
	if i >= len(values) {
		return "", volerr.Format("%s: expected at least %d values, got %d", key, i+1, len(values))
	}
	return values[i], nil
}

func floatToken(values []string, i int, key string) (float64, error) {
	tok, err := token(values, i, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, volerr.WrapFormat(err, "%s: invalid number %q", key, tok)
	}
	return v, nil
}

func floats3(values []string, key string) ([3]float64, error) {
	var out [3]float64
	for i := range out {
		v, err := floatToken(values, i, key)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

func parseOrder(values []string) ([3]models.Axis, error) {
	var order [3]models.Axis
	seen := make(map[models.Axis]bool, 3)
	for i := range order {
		tok, err := token(values, i, "order")
		if err != nil {
			return order, err
		}
		var a models.Axis
		switch tok[0] {
		case 'x', 'X':
			a = models.AxisX
		case 'y', 'Y':
			a = models.AxisY
		case 'z', 'Z':
			a = models.AxisZ
		default:
			return order, volerr.Format("order: expected one of x,y,z, got %q", tok)
		}
		if seen[a] {
			return order, volerr.Format("order: duplicate of one of x,y,z")
		}
		seen[a] = true
		order[i] = a
	}
	return order, nil
}

func axisFromKey(key string) models.Axis {
	switch key[0] {
	case 'x':
		return models.AxisX
	case 'y':
		return models.AxisY
	default:
		return models.AxisZ
	}
}
