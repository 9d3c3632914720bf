package types

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Datafile is the JSON feature configuration document served from the CDN.
//
// Apart from "revision" the manager treats its contents as opaque; the
// evaluator decides what the rest of the document means.
type Datafile map[string]interface{}

const revisionField = "revision"

// ParseDatafile decodes a JSON object into a Datafile. Anything other than a
// JSON object (including null) is rejected.
func ParseDatafile(data []byte) (Datafile, error) {
	var datafile Datafile
	if err := json.Unmarshal(data, &datafile); err != nil {
		return nil, err
	}
	if datafile == nil {
		return nil, errors.New("datafile must be a JSON object")
	}
	return datafile, nil
}

// IsEmpty reports whether the datafile has no content at all
func (d Datafile) IsEmpty() bool {
	return len(d) == 0
}

// Revision returns the numeric revision of the datafile, or NaN when the
// revision is missing or not numeric. Datafiles carry the revision as a
// numeric string ("42") but plain numbers are accepted too.
func (d Datafile) Revision() float64 {
	value, ok := d[revisionField]
	if !ok {
		return math.NaN()
	}
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	case nil:
		return 0
	case string:
		return parseNumericString(v)
	}
	return math.NaN()
}

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

var radixPrefixes = map[string]int{"0x": 16, "0o": 8, "0b": 2}

// parseNumericString converts s the way revisions written by other SDKs are
// read: surrounding whitespace is ignored, blank means 0, "Infinity" may be
// signed, unsigned 0x/0o/0b integers are accepted and anything else that is
// not a plain decimal is NaN. Go-only spellings such as "inf", hex floats and
// digit separators are rejected.
func parseNumericString(s string) float64 {
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(trimmed) > 2 {
		if base, ok := radixPrefixes[strings.ToLower(trimmed[:2])]; ok {
			digits := trimmed[2:]
			if digits[0] == '+' || digits[0] == '-' {
				return math.NaN()
			}
			n, ok := new(big.Int).SetString(digits, base)
			if !ok {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f
		}
	}
	if !decimalPattern.MatchString(trimmed) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return f
}

// HasRevision reports whether the datafile carries a usable revision. A
// missing, null, empty, zero or false revision counts as no revision.
func (d Datafile) HasRevision() bool {
	value, ok := d[revisionField]
	if !ok || value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		return v != ""
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return true
}

// RevisionString returns the revision formatted for logs
func (d Datafile) RevisionString() string {
	if value, ok := d[revisionField]; ok {
		switch v := value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return "none"
}

// IsNewerThan reports whether d should replace current. A datafile is newer
// when its revision is strictly greater, or when current has no revision yet.
func (d Datafile) IsNewerThan(current Datafile) bool {
	return d.Revision() > current.Revision() || !current.HasRevision()
}
