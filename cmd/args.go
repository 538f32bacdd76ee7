package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ldamasio/b2-go/internal/clierr"
)

// positional declares one positional argument.
type positional struct {
	name     string
	optional bool
}

func required(name string) positional { return positional{name: name} }
func optional(name string) positional { return positional{name: name, optional: true} }

// positionals is the ordered positional list of a command. Optional entries
// are filled left to right only with the arguments left over once every
// required entry has one, so "[fileName] fileId" binds a single argument to
// fileId.
type positionals []positional

func (p positionals) usage() string {
	parts := make([]string, 0, len(p))
	for _, arg := range p {
		if arg.optional {
			parts = append(parts, "["+arg.name+"]")
		} else {
			parts = append(parts, arg.name)
		}
	}
	return strings.Join(parts, " ")
}

func (p positionals) requiredCount() int {
	n := 0
	for _, arg := range p {
		if !arg.optional {
			n++
		}
	}
	return n
}

// validate is the cobra Args function for the list.
func (p positionals) validate(_ *cobra.Command, args []string) error {
	if need := p.requiredCount(); len(args) < need {
		var missing []string
		bound := p.bind(args)
		for _, arg := range p {
			if _, ok := bound[arg.name]; !ok && !arg.optional {
				missing = append(missing, arg.name)
			}
		}
		return clierr.Syntaxf("the following arguments are required: %s", strings.Join(missing, ", "))
	}
	if len(args) > len(p) {
		return clierr.Syntaxf("unrecognized arguments: %s", strings.Join(args[len(p):], " "))
	}
	return nil
}

// bind maps argument names to values; absent optionals are missing from the
// result.
func (p positionals) bind(args []string) map[string]string {
	out := make(map[string]string, len(p))
	extra := len(args) - p.requiredCount()
	i := 0
	for _, arg := range p {
		if i >= len(args) {
			break
		}
		if arg.optional {
			if extra <= 0 {
				continue
			}
			extra--
		}
		out[arg.name] = args[i]
		i++
	}
	return out
}

// withPositionals installs the validator and appends the usage to c.Use,
// which at this point holds only the flags summary.
func withPositionals(c *cobra.Command, p ...positional) positionals {
	list := positionals(p)
	c.Args = list.validate
	c.Use = strings.TrimSpace(c.Use + " " + list.usage())
	return list
}

// enumValue accepts one token of a fixed table, case-insensitively.
type enumValue struct {
	table map[string]string
	value string
}

func newEnumValue(table map[string]string) *enumValue {
	return &enumValue{table: table}
}

func (e *enumValue) String() string { return e.value }

func (e *enumValue) Set(raw string) error {
	for token, value := range e.table {
		if strings.EqualFold(token, raw) {
			e.value = value
			return nil
		}
	}
	return fmt.Errorf("value is not supported, supported values are: %s", strings.Join(e.tokens(), ", "))
}

func (e *enumValue) Type() string { return "enum" }

func (e *enumValue) tokens() []string {
	tokens := make([]string, 0, len(e.table))
	for token := range e.table {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// jsonValue holds a flag parsed as a JSON document; nil when unset.
type jsonValue struct {
	raw   string
	value interface{}
}

func (j *jsonValue) String() string { return j.raw }

func (j *jsonValue) Set(raw string) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("must be valid JSON: %v", err)
	}
	j.raw, j.value = raw, v
	return nil
}

func (j *jsonValue) Type() string { return "json" }

// rangeValue parses "start,end" into an inclusive byte range.
type rangeValue struct {
	set   bool
	value [2]int64
}

func (r *rangeValue) String() string {
	if !r.set {
		return ""
	}
	return fmt.Sprintf("%d,%d", r.value[0], r.value[1])
}

func (r *rangeValue) Set(raw string) error {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return fmt.Errorf("must be exactly 2 values, start and end")
	}
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return fmt.Errorf("start and end must be integers")
		}
		r.value[i] = v
	}
	r.set = true
	return nil
}

func (r *rangeValue) Type() string { return "start,end" }

func (r *rangeValue) get() *[2]int64 {
	if !r.set {
		return nil
	}
	v := r.value
	return &v
}

// commaList splits "a, b,c" into trimmed words.
func commaList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseFileInfos turns repeated "name=value" flags into a map.
func parseFileInfos(entries []string) (map[string]string, error) {
	infos := make(map[string]string, len(entries))
	for _, entry := range entries {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, clierr.Domainf("Bad file info: %s", entry)
		}
		infos[name] = value
	}
	return infos, nil
}

// optionalInt returns a pointer to the flag value, or nil when the flag was
// not given.
func optionalInt(flags *pflag.FlagSet, name string, value int) *int {
	if !flags.Changed(name) {
		return nil
	}
	return &value
}

func optionalString(flags *pflag.FlagSet, name, value string) *string {
	if !flags.Changed(name) {
		return nil
	}
	return &value
}

func optionalFloat(flags *pflag.FlagSet, name string, value float64) *float64 {
	if !flags.Changed(name) {
		return nil
	}
	return &value
}
