// Package fortios reads the textual "show full-configuration" output
// of a FortiGate appliance and turns it into the nested config tree
// consumed by package parser. The text is a line oriented block
// structure:
//
//	config system interface
//	    edit "port1"
//	        set ip 192.168.122.10 255.255.255.0
//	    next
//	end
//
// With virtual domains enabled, per-domain sections are wrapped in
// "config vdom" blocks holding one edit per domain, and shared
// settings live in a parallel "config global" block.
package fortios

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// SyntaxError reports malformed input with its line number.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func syntaxErr(line int, format string, args ...interface{}) error {
	return &SyntaxError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

type lexer struct {
	sc     *bufio.Scanner
	line   int
	pushed []string
}

// next returns the keywords of the next non-empty, non-comment line.
func (l *lexer) next() ([]string, int, error) {
	if l.pushed != nil {
		kws := l.pushed
		l.pushed = nil
		return kws, l.line, nil
	}
	for l.sc.Scan() {
		l.line++
		trimmed := strings.TrimSpace(l.sc.Text())
		if trimmed == "" || trimmed[0] == '#' {
			continue
		}
		return splitLine(trimmed), l.line, nil
	}
	if err := l.sc.Err(); err != nil {
		return nil, l.line, err
	}
	return nil, l.line, io.EOF
}

// push returns one line of lookahead to the lexer.
func (l *lexer) push(kws []string) {
	l.pushed = kws
}

// splitLine splits a config line into keywords. Double quoted values
// may contain blanks and backslash escapes; quotes are stripped.
func splitLine(s string) []string {
	var kws []string
	var cur strings.Builder
	inQuote := false
	hasTok := false
	flush := func() {
		if hasTok {
			kws = append(kws, cur.String())
			cur.Reset()
			hasTok = false
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			hasTok = true
		case c == '\\' && inQuote && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case (c == ' ' || c == '\t') && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
			hasTok = true
		}
	}
	flush()
	return kws
}

// setValue keeps single values scalar and multi-token values as
// lists, the shapes the query layer expects: "subnet" and "ip" are
// always written with two tokens and stay two-element lists, while a
// single "member" reference stays a plain string.
func setValue(vals []string) interface{} {
	if len(vals) == 1 {
		return vals[0]
	}
	list := make([]interface{}, len(vals))
	for i, v := range vals {
		list[i] = v
	}
	return list
}

// Parse reads one full configuration dump and returns the config tree
// {"configs": [{"config": name, ...}, ...]}.
func Parse(r io.Reader) (map[string]interface{}, error) {
	l := &lexer{sc: bufio.NewScanner(r)}
	l.sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var configs []interface{}
	for {
		kws, line, err := l.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if kws[0] != "config" {
			return nil, syntaxErr(line, "expected 'config', got %q", kws[0])
		}
		if len(kws) < 2 {
			return nil, syntaxErr(line, "'config' without section name")
		}
		block, err := l.parseConfig(strings.Join(kws[1:], " "))
		if err != nil {
			return nil, err
		}
		configs = append(configs, block)
	}
	return map[string]interface{}{"configs": configs}, nil
}

// ParseFile parses the dump stored at path.
func ParseFile(path string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	defer f.Close()
	cnf, err := Parse(f)
	return cnf, errors.Wrapf(err, "parsing %s", path)
}

// parseConfig reads the body of one config section up to its "end".
// Top-level settings ("set hostname ...") land directly on the block,
// edit sections are collected under "edits". The "config global"
// block nests whole config sections directly; those are collected
// under "configs".
func (l *lexer) parseConfig(name string) (map[string]interface{}, error) {
	block := map[string]interface{}{"config": name}
	var edits []interface{}
	var configs []interface{}
	for {
		kws, line, err := l.next()
		if err == io.EOF {
			return nil, syntaxErr(line, "unexpected end of input in config %q", name)
		}
		if err != nil {
			return nil, err
		}
		switch kws[0] {
		case "edit":
			if len(kws) < 2 {
				return nil, syntaxErr(line, "'edit' without name")
			}
			edit, err := l.parseEdit(kws[1])
			if err != nil {
				return nil, err
			}
			edits = append(edits, edit)
		case "set":
			if len(kws) < 3 {
				return nil, syntaxErr(line, "'set' needs key and value")
			}
			block[kws[1]] = setValue(kws[2:])
		case "unset":
			// Resets a key to its default, nothing to record.
		case "config":
			if len(kws) < 2 {
				return nil, syntaxErr(line, "'config' without section name")
			}
			sub, err := l.parseConfig(strings.Join(kws[1:], " "))
			if err != nil {
				return nil, err
			}
			configs = append(configs, sub)
		case "end":
			if edits != nil {
				block["edits"] = edits
			}
			if configs != nil {
				block["configs"] = configs
			}
			return block, nil
		default:
			return nil, syntaxErr(line, "unexpected %q in config %q", kws[0], name)
		}
	}
}

// parseEdit reads one edit body. Plain edits are closed by "next".
// Vdom edits holding nested config sections may be closed directly by
// the enclosing "end", which is pushed back for parseConfig.
func (l *lexer) parseEdit(name string) (map[string]interface{}, error) {
	edit := map[string]interface{}{"edit": name}
	var configs []interface{}
	done := func() map[string]interface{} {
		if configs != nil {
			edit["configs"] = configs
		}
		return edit
	}
	for {
		kws, line, err := l.next()
		if err == io.EOF {
			return nil, syntaxErr(line, "unexpected end of input in edit %q", name)
		}
		if err != nil {
			return nil, err
		}
		switch kws[0] {
		case "set":
			if len(kws) < 3 {
				return nil, syntaxErr(line, "'set' needs key and value")
			}
			edit[kws[1]] = setValue(kws[2:])
		case "unset":
		case "config":
			if len(kws) < 2 {
				return nil, syntaxErr(line, "'config' without section name")
			}
			sub, err := l.parseConfig(strings.Join(kws[1:], " "))
			if err != nil {
				return nil, err
			}
			configs = append(configs, sub)
		case "next":
			return done(), nil
		case "end":
			l.push(kws)
			return done(), nil
		default:
			return nil, syntaxErr(line, "unexpected %q in edit %q", kws[0], name)
		}
	}
}
