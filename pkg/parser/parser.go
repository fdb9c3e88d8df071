// Package parser models the parsed configuration tree of one firewall
// appliance and evaluates path queries over it.
//
// The tree is a plain nested mapping with a top-level "configs" list.
// Each element is either a leaf section {config: name, edits: [...]}
// or a virtual domain container {config: "vdom", edits: [{edit: name,
// configs: [...]}]}. With virtual domains present, a parallel
// {config: "global"} element holds the domain independent settings and
// every query considers both halves, global results first.
package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fortiscope/fortiscope/pkg/fileop"
	"github.com/jmespath/go-jmespath"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultSections are the config sections extracted when dumping a
// parsed configuration to per-section files.
var DefaultSections = []string{
	"system.*",
	"firewall service category",
	"firewall service group",
	"firewall service custom",
	"firewall addrgrp",
	"firewall address",
	"firewall policy",
}

const (
	allFilename      = "all.json"
	metadataFilename = "metadata.json"
)

// InvalidConfigError reports a config tree without the expected
// shape.
type InvalidConfigError struct {
	Path   string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config data in %s: %s", e.Path, e.Reason)
}

// MissingHostnameError reports a configuration without a hostname in
// its "system global" section.
type MissingHostnameError struct{}

func (e *MissingHostnameError) Error() string {
	return "no hostname found in 'system global' configuration"
}

// Validate checks the shape of a loaded config tree, failing first.
func Validate(cnf map[string]interface{}, path string) error {
	if len(cnf) == 0 {
		return &InvalidConfigError{Path: path, Reason: "no data"}
	}
	configs, found := cnf["configs"]
	if !found {
		return &InvalidConfigError{Path: path, Reason: "'configs' not found"}
	}
	if _, ok := configs.([]interface{}); !ok {
		return &InvalidConfigError{Path: path, Reason: "'configs' is not a list"}
	}
	return nil
}

// Load reads a previously parsed config tree from a JSON or YAML file
// and validates its shape.
func Load(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var cnf map[string]interface{}
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &cnf)
	default:
		err = json.Unmarshal(data, &cnf)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if err := Validate(cnf, path); err != nil {
		return nil, err
	}
	return cnf, nil
}

func configList(cnf map[string]interface{}) []interface{} {
	l, _ := cnf["configs"].([]interface{})
	return l
}

// HasVdom reports whether the tree is in multi-domain mode.
func HasVdom(cnf map[string]interface{}) bool {
	for _, c := range configList(cnf) {
		if m, ok := c.(map[string]interface{}); ok && m["config"] == "vdom" {
			return true
		}
	}
	return false
}

func toList(v interface{}) []interface{} {
	switch r := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return r
	default:
		return []interface{}{r}
	}
}

func searchOne(exp string, data interface{}) ([]interface{}, error) {
	res, err := jmespath.Search(exp, data)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", exp)
	}
	return toList(res), nil
}

func globalExp(exp string) string {
	return "configs[?config=='global'] | [0]." + exp
}

func vdomExp(exp, vdom string) string {
	if vdom != "" {
		return fmt.Sprintf(
			"configs[?config=='vdom' && edits[0].edit=='%s'].edits[].%s",
			vdom, exp)
	}
	return "configs[?config=='vdom'].edits[]." + exp + "[]"
}

// Search evaluates the path expression exp against the config tree.
// In multi-domain mode the expression is evaluated once rooted at the
// shared global section and once across the vdom sections (restricted
// to one domain when vdom is set), concatenating global results first.
// A well-formed expression without matches yields an empty result; a
// malformed expression is an error.
func Search(
	exp string, cnf map[string]interface{}, hasVdoms bool, vdom string,
) ([]interface{}, error) {
	if !hasVdoms {
		return searchOne(exp, cnf)
	}
	resGlobal, err := searchOne(globalExp(exp), cnf)
	if err != nil {
		return nil, err
	}
	resVdoms, err := searchOne(vdomExp(exp, vdom), cnf)
	if err != nil {
		return nil, err
	}
	return append(resGlobal, resVdoms...), nil
}

// ConfigEdits returns the edit sections of the named config across
// all domains.
func ConfigEdits(
	cname string, cnf map[string]interface{}, hasVdoms bool, vdom string,
) ([]interface{}, error) {
	exp := fmt.Sprintf("configs[?config=='%s'].edits[]", cname)
	return Search(exp, cnf, hasVdoms, vdom)
}

// Hostname returns the lower-cased hostname from the "system global"
// section.
func Hostname(cnf map[string]interface{}, hasVdoms bool) (string, error) {
	res, err := Search("configs[?config=='system global']", cnf, hasVdoms, "")
	if err != nil {
		return "", err
	}
	for _, c := range res {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if h, ok := m["hostname"].(string); ok && h != "" {
			return strings.ToLower(h), nil
		}
	}
	return "", &MissingHostnameError{}
}

// ListVdomNames returns the sorted names of all virtual domains, or
// ["root"] for a single-domain configuration.
func ListVdomNames(cnf map[string]interface{}) ([]string, error) {
	if !HasVdom(cnf) {
		return []string{"root"}, nil
	}
	res, err := searchOne("configs[?config=='vdom'].edits[0].edit", cnf)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, v := range res {
		if s, ok := v.(string); ok && !seen[s] {
			seen[s] = true
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return nil, &InvalidConfigError{
			Path: "vdom", Reason: "no virtual domain names found"}
	}
	sort.Strings(names)
	return names, nil
}

// ListConfigNames returns the sorted distinct config names matching
// re, across all domains. Used to discover dynamically named sections
// like "system.*".
func ListConfigNames(
	cnf map[string]interface{}, re *regexp.Regexp, hasVdoms bool,
) ([]string, error) {
	res, err := Search("configs[].config", cnf, hasVdoms, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, v := range res {
		s, ok := v.(string)
		if !ok || seen[s] || !re.MatchString(s) {
			continue
		}
		seen[s] = true
		names = append(names, s)
	}
	sort.Strings(names)
	return names, nil
}

// SectionFilename derives the file name a config section is dumped
// under.
func SectionFilename(cname string) string {
	return regexp.MustCompile(`[\s"']`).ReplaceAllString(cname, "_") + ".json"
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	return fileop.Overwrite(path, append(data, '\n'))
}

// DumpSections saves the full tree plus one JSON file per extracted
// config section below outdir/<hostname>/, together with a metadata
// file. Section names containing "*" are treated as regular
// expressions and expanded against the configured section names.
// It returns the directory written to.
func DumpSections(
	cnf map[string]interface{}, input, outdir string, sections []string,
) (string, error) {
	hasVdoms := HasVdom(cnf)
	vdoms, err := ListVdomNames(cnf)
	if err != nil {
		return "", err
	}
	hostname, err := Hostname(cnf, hasVdoms)
	if err != nil {
		if _, ok := err.(*MissingHostnameError); !ok {
			return "", err
		}
		hostname = fmt.Sprintf("unknown-%d", time.Now().Unix())
	}
	dir := filepath.Join(outdir, hostname)

	if err := saveJSON(filepath.Join(dir, allFilename), cnf); err != nil {
		return "", err
	}
	var expanded []string
	for _, cname := range sections {
		if !strings.Contains(cname, "*") {
			expanded = append(expanded, cname)
			continue
		}
		re, err := regexp.Compile(cname)
		if err != nil {
			return "", errors.Wrapf(err, "section pattern %q", cname)
		}
		names, err := ListConfigNames(cnf, re, hasVdoms)
		if err != nil {
			return "", err
		}
		expanded = append(expanded, names...)
	}
	for _, cname := range expanded {
		edits, err := ConfigEdits(cname, cnf, hasVdoms, "")
		if err != nil {
			return "", err
		}
		path := filepath.Join(dir, SectionFilename(cname))
		if err := saveJSON(path, edits); err != nil {
			return "", err
		}
	}
	metadata := map[string]interface{}{
		"timestamp":     time.Now().Format(time.RFC3339),
		"hostname":      hostname,
		"vdoms":         vdoms,
		"original_data": input,
	}
	if err := saveJSON(filepath.Join(dir, metadataFilename), metadata); err != nil {
		return "", err
	}
	return dir, nil
}
