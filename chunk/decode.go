package chunk

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNotChunk is returned by ParseName when a cookie name does not belong to the base name.
	ErrNotChunk = errors.New("chunk: not a chunk of base name")
	// ErrMalformedOrdinal is returned for numeric suffixes with leading zeros or out of range.
	ErrMalformedOrdinal = errors.New("chunk: malformed ordinal")
	// ErrAmbiguous is returned when the same chunk appears twice or the unsuffixed
	// name is mixed with suffixed chunks.
	ErrAmbiguous = errors.New("chunk: ambiguous chunk set")
	// ErrGap is returned when ordinals are not exactly 0..n-1.
	ErrGap = errors.New("chunk: gap in chunk ordinals")
	// ErrEmptyChunk is returned for a suffixed chunk without a value.
	ErrEmptyChunk = errors.New("chunk: empty chunk")
	// ErrOversized is returned by DecodeLimit for a chunk value longer than the budget.
	ErrOversized = errors.New("chunk: chunk exceeds size budget")
)

// maxOrdinalDigits keeps ordinal parsing inside int range. No token Encode can
// produce needs a longer suffix.
const maxOrdinalDigits = 18

// Manifest lists the chunk names of one base name that were present on a request.
type Manifest struct {
	Base  string
	Names []string
}

// Count returns the number of chunk names in the manifest.
func (m Manifest) Count() int {
	return len(m.Names)
}

// Has reports whether name is part of the manifest.
func (m Manifest) Has(name string) bool {
	for _, n := range m.Names {
		if n == name {
			return true
		}
	}
	return false
}

// ParseName classifies a cookie name against base.
//
// The unsuffixed base name is ordinal 0 with suffixed=false. A name of the form
// base.<digits> yields its ordinal with suffixed=true. Digit suffixes with a leading zero
// or more than 18 digits return ErrMalformedOrdinal. Any other name, including
// base.<non-digits>, returns ErrNotChunk.
func ParseName(base, name string) (ordinal int, suffixed bool, err error) {
	if name == base {
		return 0, false, nil
	}
	if base == "" || !strings.HasPrefix(name, base+".") {
		return 0, false, ErrNotChunk
	}

	suffix := name[len(base)+1:]
	if suffix == "" {
		return 0, false, ErrNotChunk
	}
	for i := 0; i < len(suffix); i++ {
		if suffix[i] < '0' || suffix[i] > '9' {
			return 0, false, ErrNotChunk
		}
	}
	if len(suffix) > 1 && suffix[0] == '0' {
		return 0, true, ErrMalformedOrdinal
	}
	if len(suffix) > maxOrdinalDigits {
		return 0, true, ErrMalformedOrdinal
	}

	n := 0
	for i := 0; i < len(suffix); i++ {
		n = n*10 + int(suffix[i]-'0')
	}
	return n, true, nil
}

type part struct {
	ordinal  int
	suffixed bool
	value    string
}

// Decode reassembles the token stored under base from cookies.
//
// When no cookie belongs to base it returns an empty token, an empty manifest and a nil
// error: the normal signed-out state. On any error the token is empty but the manifest
// still lists every chunk name present so the caller can expire them.
func Decode(cookies []*http.Cookie, base string) (string, Manifest, error) {
	return DecodeLimit(cookies, base, 0)
}

// DecodeLimit is Decode with every chunk value bounded by maxChunkSize bytes.
// A value over the bound fails with ErrOversized. maxChunkSize <= 0 disables the bound.
func DecodeLimit(cookies []*http.Cookie, base string, maxChunkSize int) (string, Manifest, error) {
	m := Manifest{Base: base}

	var (
		parts    []part
		seen     = make(map[string]struct{})
		firstErr error
	)
	for _, c := range cookies {
		if c == nil {
			continue
		}
		ordinal, suffixed, err := ParseName(base, c.Name)
		if errors.Is(err, ErrNotChunk) {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			if firstErr == nil {
				firstErr = ErrAmbiguous
			}
			continue
		}
		seen[c.Name] = struct{}{}
		m.Names = append(m.Names, c.Name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if maxChunkSize > 0 && len(c.Value) > maxChunkSize {
			if firstErr == nil {
				firstErr = ErrOversized
			}
			continue
		}
		parts = append(parts, part{ordinal: ordinal, suffixed: suffixed, value: c.Value})
	}
	sortNames(base, m.Names)

	if len(m.Names) == 0 {
		return "", m, nil
	}
	if firstErr != nil {
		return "", m, firstErr
	}

	if len(parts) == 1 && !parts[0].suffixed {
		if parts[0].value == "" {
			return "", m, nil
		}
		return parts[0].value, m, nil
	}
	for _, p := range parts {
		if !p.suffixed {
			return "", m, ErrAmbiguous
		}
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].ordinal < parts[j].ordinal })
	var b strings.Builder
	for i, p := range parts {
		if p.ordinal != i {
			return "", m, ErrGap
		}
		if p.value == "" {
			return "", m, ErrEmptyChunk
		}
		b.WriteString(p.value)
	}
	return b.String(), m, nil
}

// sortNames orders the unsuffixed name first, then ordinals ascending, then anything
// malformed by plain string order.
func sortNames(base string, names []string) {
	rank := func(name string) (int, int) {
		ordinal, suffixed, err := ParseName(base, name)
		switch {
		case err != nil:
			return 2, 0
		case !suffixed:
			return 0, 0
		default:
			return 1, ordinal
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		ci, oi := rank(names[i])
		cj, oj := rank(names[j])
		if ci != cj {
			return ci < cj
		}
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
}
