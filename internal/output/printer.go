/*
Package output renders command results on two channels: the primary stream
for results and the diagnostic stream for errors and warnings.

Text is written in the channel's charset. When a line holds a character the
charset cannot represent, the printer warns once per channel on the
diagnostic stream and writes the line again with that character escaped.
*/
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// IndentNarrow is the JSON indentation used by file-level commands.
	IndentNarrow = 2
	// IndentWide is the JSON indentation used by account and bucket commands.
	IndentWide = 4
)

type channel struct {
	name    string
	w       io.Writer
	charset Charset
	warned  bool
}

// Printer is safe for concurrent use; lines from different goroutines never
// interleave.
type Printer struct {
	mu     sync.Mutex
	stdout *channel
	stderr *channel
}

// New returns a printer writing results to stdout and diagnostics to stderr,
// both in charset.
func New(stdout, stderr io.Writer, charset Charset) *Printer {
	return NewWithCharsets(stdout, charset, stderr, charset)
}

// NewWithCharsets is New with a charset per channel.
func NewWithCharsets(stdout io.Writer, outCharset Charset, stderr io.Writer, errCharset Charset) *Printer {
	return &Printer{
		stdout: &channel{name: "stdout", w: stdout, charset: outCharset},
		stderr: &channel{name: "stderr", w: stderr, charset: errCharset},
	}
}

// Print writes args joined by single spaces and one newline to the primary
// stream.
func (p *Printer) Print(args ...string) error {
	return p.write(p.stdout, args)
}

// Printf formats one line for the primary stream.
func (p *Printer) Printf(format string, args ...interface{}) error {
	return p.write(p.stdout, []string{fmt.Sprintf(format, args...)})
}

// PrintStderr writes args joined by single spaces and one newline to the
// diagnostic stream.
func (p *Printer) PrintStderr(args ...string) error {
	return p.write(p.stderr, args)
}

// PrintJSON writes data as key-sorted JSON indented by indent spaces. Maps
// are sorted by encoding/json; struct values are routed through a generic
// map first so their fields come out sorted as well.
func (p *Printer) PrintJSON(data interface{}, indent int) error {
	text, err := FormatJSON(data, indent)
	if err != nil {
		return err
	}
	return p.Print(text)
}

// FormatJSON renders data the way PrintJSON does, without the trailing
// newline.
func FormatJSON(data interface{}, indent int) (string, error) {
	generic, err := toGeneric(data)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", strings.Repeat(" ", indent))
	if err := enc.Encode(generic); err != nil {
		return "", err
	}
	return asciiOnly(strings.TrimSuffix(buf.String(), "\n")), nil
}

// asciiOnly replaces every non-ASCII rune of encoded JSON with its \uXXXX
// escape, as a surrogate pair above the BMP. Such runes only occur inside
// strings, so the document keeps its meaning.
func asciiOnly(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < utf8.RuneSelf {
			b.WriteByte(byte(r))
			continue
		}
		for _, unit := range utf16.Encode([]rune{r}) {
			fmt.Fprintf(&b, "\\u%04x", unit)
		}
	}
	return b.String()
}

func toGeneric(data interface{}) (interface{}, error) {
	switch data.(type) {
	case map[string]interface{}, []interface{}, string, nil:
		return data, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// StdoutCharset names the charset of the primary stream.
func (p *Printer) StdoutCharset() string { return p.stdout.charset.Name() }

// Warned reports whether the encoding warning was already emitted for the
// named channel ("stdout" or "stderr").
func (p *Printer) Warned(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch name {
	case p.stdout.name:
		return p.stdout.warned
	case p.stderr.name:
		return p.stderr.warned
	}
	return false
}

func (p *Printer) write(ch *channel, args []string) error {
	line := strings.Join(args, " ")

	p.mu.Lock()
	defer p.mu.Unlock()

	if !ch.charset.representable(line) {
		if !ch.warned {
			ch.warned = true
			warning := fmt.Sprintf("\nWARNING: Unable to print unicode.  Encoding for %s is: '%s'\n", ch.name, ch.charset.Name())
			// The warning is plain ASCII and always representable.
			if _, err := io.WriteString(p.stderr.w, warning); err != nil {
				return err
			}
		}
		line = ch.charset.escape(line)
	}

	encoded, err := ch.charset.encode(line + "\n")
	if err != nil {
		return err
	}
	_, err = ch.w.Write(encoded)
	return err
}
