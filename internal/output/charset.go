package output

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Charset describes what an output channel can represent.
type Charset struct {
	name  string
	ascii bool
	enc   encoding.Encoding
}

// UTF8 represents every valid rune.
var UTF8 = Charset{name: "utf-8"}

// ASCII represents runes below 0x80 only.
var ASCII = Charset{name: "ascii", ascii: true}

// LookupCharset resolves an IANA charset name. Unknown names fall back to
// UTF-8 with ok set to false.
func LookupCharset(name string) (Charset, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "", "utf-8", "utf8":
		return UTF8, normalized != ""
	case "ascii", "us-ascii", "ansi_x3.4-1968", "646":
		return ASCII, true
	}
	enc, err := ianaindex.IANA.Encoding(normalized)
	if err != nil || enc == nil {
		return UTF8, false
	}
	canonical, err := ianaindex.MIME.Name(enc)
	if err != nil || canonical == "" {
		canonical = normalized
	}
	return Charset{name: strings.ToLower(canonical), enc: enc}, true
}

// CharsetFromEnv derives the terminal charset from the POSIX locale
// variables, first non-empty of LC_ALL, LC_CTYPE and LANG.
func CharsetFromEnv(getenv func(string) string) Charset {
	var locale string
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if v := getenv(key); v != "" {
			locale = v
			break
		}
	}
	if locale == "C" || locale == "POSIX" {
		return ASCII
	}
	dot := strings.IndexByte(locale, '.')
	if dot < 0 {
		return UTF8
	}
	name := locale[dot+1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	cs, _ := LookupCharset(name)
	return cs
}

// Name is the lower-case charset name shown in warnings.
func (c Charset) Name() string { return c.name }

func (c Charset) canEncode(r rune) bool {
	switch {
	case c.ascii:
		return r < utf8.RuneSelf
	case c.enc == nil:
		return true
	}
	_, err := c.enc.NewEncoder().String(string(r))
	return err == nil
}

// representable reports whether every rune of s can be written.
func (c Charset) representable(s string) bool {
	if c.enc == nil && !c.ascii {
		return utf8.ValidString(s)
	}
	for _, r := range s {
		if !c.canEncode(r) {
			return false
		}
	}
	return true
}

// escape replaces runes the charset cannot represent with backslash escapes:
// \xNN below 0x100, \uNNNN below 0x10000 and \UNNNNNNNN above.
func (c Charset) escape(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				fmt.Fprintf(&b, `\x%02x`, s[i])
				continue
			}
		}
		if c.canEncode(r) {
			b.WriteRune(r)
			continue
		}
		switch {
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	return b.String()
}

// encode converts s into the charset's byte representation. s must already
// be representable.
func (c Charset) encode(s string) ([]byte, error) {
	if c.enc == nil {
		return []byte(s), nil
	}
	return c.enc.NewEncoder().Bytes([]byte(s))
}
