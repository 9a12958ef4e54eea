package sink

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Postgres numeric rejects decimal exponents outside this range.
const maxNumericExponent = 1000

// jsonPayload returns the payload as text for the JSONB column, or NULL when
// Postgres would reject it. The bytes still land in raw_bytes either way.
func jsonPayload(raw []byte) sql.NullString {
	if !utf8.Valid(raw) || !json.Valid(raw) || !jsonbEscapes(raw) || !jsonbNumbers(raw) {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// jsonbEscapes reports whether every \u escape in a valid JSON text is
// something JSONB stores: no \u0000 and no unpaired surrogate halves.
func jsonbEscapes(raw []byte) bool {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' {
			continue
		}
		i++
		if i >= len(raw) {
			return false
		}
		if raw[i] != 'u' {
			continue
		}
		r, ok := hex4(raw[i+1:])
		if !ok {
			return false
		}
		i += 4
		switch {
		case r == 0:
			return false
		case r >= 0xDC00 && r <= 0xDFFF:
			return false
		case r >= 0xD800 && r <= 0xDBFF:
			if i+6 >= len(raw) || raw[i+1] != '\\' || raw[i+2] != 'u' {
				return false
			}
			lo, ok := hex4(raw[i+3:])
			if !ok || lo < 0xDC00 || lo > 0xDFFF {
				return false
			}
			i += 6
		}
	}
	return true
}

func hex4(b []byte) (rune, bool) {
	if len(b) < 4 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(b[:4]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// jsonbNumbers reports whether every number fits a float64 and a numeric
// exponent.
func jsonbNumbers(raw []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			return false
		}
		n, ok := tok.(json.Number)
		if !ok {
			continue
		}
		if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
			return false
		}
		if i := strings.IndexAny(n.String(), "eE"); i >= 0 {
			exp, err := strconv.Atoi(strings.TrimPrefix(n.String()[i+1:], "+"))
			if err != nil || exp > maxNumericExponent || exp < -maxNumericExponent {
				return false
			}
		}
	}
}
