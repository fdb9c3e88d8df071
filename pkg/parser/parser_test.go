package parser

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/fortiscope/fortiscope/pkg/fortios"
	"gotest.tools/assert"
)

const flatConfig = `
config system global
    set hostname "FortiGate-01"
end
config system interface
    edit "port1"
        set ip 192.168.122.10 255.255.255.0
    next
end
config firewall address
    edit "net1"
        set subnet 192.168.5.0 255.255.255.0
    next
end
`

const vdomConfig = `
config vdom
edit root
config system interface
    edit "port1"
        set ip 10.0.0.1 255.255.255.0
    next
end
config firewall address
    edit "net1"
        set subnet 10.0.1.0 255.255.255.0
    next
end
end
config vdom
edit dmz
config system interface
    edit "port2"
        set ip 10.0.2.1 255.255.255.0
    next
end
end
config global
config system global
    set hostname "FW-VDOM"
end
end
`

func parse(t *testing.T, text string) map[string]interface{} {
	t.Helper()
	cnf, err := fortios.Parse(strings.NewReader(text))
	assert.NilError(t, err)
	return cnf
}

func TestValidate(t *testing.T) {
	err := Validate(map[string]interface{}{}, "x.json")
	assert.ErrorContains(t, err, "no data")

	err = Validate(map[string]interface{}{"other": 1}, "x.json")
	assert.ErrorContains(t, err, "'configs' not found")

	err = Validate(map[string]interface{}{"configs": "nope"}, "x.json")
	assert.ErrorContains(t, err, "not a list")

	err = Validate(parse(t, flatConfig), "x.json")
	assert.NilError(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "all.json")
	assert.NilError(t,
		os.WriteFile(path, []byte(`{"configs": []}`), 0644))
	_, err := Load(path)
	assert.NilError(t, err)

	bad := filepath.Join(dir, "bad.json")
	assert.NilError(t, os.WriteFile(bad, []byte(`{"other": 1}`), 0644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "'configs' not found")
}

func TestHasVdom(t *testing.T) {
	assert.Assert(t, !HasVdom(parse(t, flatConfig)))
	assert.Assert(t, HasVdom(parse(t, vdomConfig)))
}

func TestHostname(t *testing.T) {
	got, err := Hostname(parse(t, flatConfig), false)
	assert.NilError(t, err)
	assert.Equal(t, "fortigate-01", got)

	got, err = Hostname(parse(t, vdomConfig), true)
	assert.NilError(t, err)
	assert.Equal(t, "fw-vdom", got)

	_, err = Hostname(parse(t, "config system global\nend\n"), false)
	assert.ErrorContains(t, err, "no hostname")
}

func TestSearchFlat(t *testing.T) {
	cnf := parse(t, flatConfig)
	res, err := Search("configs[?config=='system interface'].edits[]",
		cnf, false, "")
	assert.NilError(t, err)
	assert.Equal(t, 1, len(res))
	edit := res[0].(map[string]interface{})
	assert.Equal(t, "port1", edit["edit"])

	// Well-formed expression without matches yields an empty result.
	res, err = Search("configs[?config=='router static'].edits[]",
		cnf, false, "")
	assert.NilError(t, err)
	assert.Equal(t, 0, len(res))

	_, err = Search("configs[?", cnf, false, "")
	assert.ErrorContains(t, err, "query")
}

func TestSearchVdoms(t *testing.T) {
	cnf := parse(t, vdomConfig)

	// Both virtual domains contribute results.
	res, err := Search("configs[?config=='system interface'].edits[]",
		cnf, true, "")
	assert.NilError(t, err)
	assert.Equal(t, 2, len(res))

	// Restricted to one domain.
	res, err = Search("configs[?config=='system interface'].edits[]",
		cnf, true, "dmz")
	assert.NilError(t, err)
	assert.Equal(t, 1, len(res))
	edit := res[0].(map[string]interface{})
	assert.Equal(t, "port2", edit["edit"])

	// The shared global section is always included.
	res, err = Search("configs[?config=='system global']", cnf, true, "")
	assert.NilError(t, err)
	assert.Equal(t, 1, len(res))
}

func TestConfigEdits(t *testing.T) {
	edits, err := ConfigEdits("firewall address", parse(t, vdomConfig), true, "")
	assert.NilError(t, err)
	assert.Equal(t, 1, len(edits))
	edit := edits[0].(map[string]interface{})
	assert.Equal(t, "net1", edit["edit"])
}

func TestListVdomNames(t *testing.T) {
	names, err := ListVdomNames(parse(t, flatConfig))
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"root"})

	names, err = ListVdomNames(parse(t, vdomConfig))
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"dmz", "root"})
}

func TestListConfigNames(t *testing.T) {
	re := regexp.MustCompile("system.*")
	names, err := ListConfigNames(parse(t, flatConfig), re, false)
	assert.NilError(t, err)
	assert.DeepEqual(t, names,
		[]string{"system global", "system interface"})

	names, err = ListConfigNames(parse(t, vdomConfig), re, true)
	assert.NilError(t, err)
	assert.DeepEqual(t, names,
		[]string{"system global", "system interface"})
}

func TestSectionFilename(t *testing.T) {
	assert.Equal(t, "system_interface.json", SectionFilename("system interface"))
	assert.Equal(t, "firewall_policy.json", SectionFilename("firewall policy"))
}

func TestDumpSections(t *testing.T) {
	outdir := t.TempDir()
	dir, err := DumpSections(parse(t, flatConfig), "fw01.txt", outdir,
		DefaultSections)
	assert.NilError(t, err)
	assert.Equal(t, filepath.Join(outdir, "fortigate-01"), dir)

	for _, name := range []string{
		"all.json", "metadata.json",
		"system_global.json", "system_interface.json",
		"firewall_address.json",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NilError(t, err, name)
	}
}
