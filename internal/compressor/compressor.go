// Package compressor shrinks text and JSON payloads deterministically.
//
// Tiers only remove whitespace and rename well-known object keys to short
// aliases, so the output is never longer than the serialized input and the
// same input at the same level always yields the same bytes.
package compressor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Borislavv/go-ash-perf/model"
)

var ErrUnserializable = errors.New("payload is not serializable")

// DefaultAliases maps verbose object keys to their short forms.
var DefaultAliases = map[string]string{
	"transaction": "tx",
	"member":      "mbr",
	"balance":     "bal",
	"amount":      "amt",
	"description": "desc",
	"timestamp":   "ts",
	"created_at":  "ca",
	"updated_at":  "ua",
	"journal":     "jnl",
	"account":     "acct",
	"reference":   "ref",
	"category":    "cat",
}

type Compressor struct {
	aliases  map[string]string
	reverted map[string]string
}

// New builds a compressor over the given key dictionary (DefaultAliases when nil).
// Aliases that are not strictly shorter than their key are dropped.
func New(aliases map[string]string) *Compressor {
	if aliases == nil {
		aliases = DefaultAliases
	}
	c := &Compressor{
		aliases:  make(map[string]string, len(aliases)),
		reverted: make(map[string]string, len(aliases)),
	}
	for key, alias := range aliases {
		if alias == "" || len(alias) >= len(key) {
			continue
		}
		c.aliases[key] = alias
		c.reverted[alias] = key
	}
	return c
}

// Serialize turns a payload into text. Strings and byte slices pass through.
func Serialize(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnserializable, err)
	}
	return string(data), nil
}

// Compress serializes the payload and applies the tier. On error the caller
// must keep using the original payload.
func (c *Compressor) Compress(payload any, level model.CompressionLevel) (in, out string, err error) {
	if in, err = Serialize(payload); err != nil {
		return "", "", err
	}
	return in, c.CompressString(in, level), nil
}

func (c *Compressor) CompressString(s string, level model.CompressionLevel) string {
	switch level {
	case model.CompressionMedium:
		return strings.TrimSpace(collapse(s, 3, "  "))
	case model.CompressionHigh:
		return c.substitute(strings.TrimSpace(collapse(s, 2, " ")), c.aliases)
	case model.CompressionMaximum:
		return c.substitute(strings.TrimSpace(collapse(s, 1, " ")), c.aliases)
	default:
		return strings.TrimSpace(s)
	}
}

// Expand reverts key aliases. Whitespace removed by Compress is not restored.
func (c *Compressor) Expand(s string) string {
	return c.substitute(s, c.reverted)
}

// collapse replaces every run of at least minRun whitespace runes with repl.
// Shorter runs are copied unchanged.
func collapse(s string, minRun int, repl string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}

		start, runes := i, 0
		for i < len(s) {
			r, size = utf8.DecodeRuneInString(s[i:])
			if !unicode.IsSpace(r) {
				break
			}
			runes++
			i += size
		}
		if runes >= minRun {
			b.WriteString(repl)
		} else {
			b.WriteString(s[start:i])
		}
	}
	return b.String()
}

// substitute rewrites quoted strings that are immediately followed by a colon
// (object keys). String values are never touched.
func (c *Compressor) substitute(s string, dict map[string]string) string {
	if len(dict) == 0 || strings.IndexByte(s, '"') < 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] != '"' {
			b.WriteByte(s[i])
			i++
			continue
		}

		end := closingQuote(s, i+1)
		if end < 0 {
			b.WriteString(s[i:])
			break
		}

		literal := s[i+1 : end]
		if repl, ok := dict[literal]; ok && isKey(s, end+1) {
			b.WriteByte('"')
			b.WriteString(repl)
			b.WriteByte('"')
		} else {
			b.WriteString(s[i : end+1])
		}
		i = end + 1
	}
	return b.String()
}

// closingQuote returns the index of the unescaped quote ending a literal that starts at from.
func closingQuote(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func isKey(s string, from int) bool {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}
