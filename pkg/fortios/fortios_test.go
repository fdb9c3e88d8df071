package fortios

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/assert"
)

const flatConfig = `
#config-version=FGVM64-7.0.1
config system global
    set hostname "FortiGate-01"
    set timezone 80
end
config system interface
    edit "port1"
        set vdom "root"
        set ip 192.168.122.10 255.255.255.0
        set allowaccess ping https ssh
    next
    edit "port2"
        unset ip
    next
end
`

func TestParseFlat(t *testing.T) {
	cnf, err := Parse(strings.NewReader(flatConfig))
	assert.NilError(t, err)
	configs := cnf["configs"].([]interface{})
	assert.Equal(t, 2, len(configs))

	global := configs[0].(map[string]interface{})
	assert.Equal(t, "system global", global["config"])
	assert.Equal(t, "FortiGate-01", global["hostname"])
	assert.Equal(t, "80", global["timezone"])

	iface := configs[1].(map[string]interface{})
	assert.Equal(t, "system interface", iface["config"])
	edits := iface["edits"].([]interface{})
	assert.Equal(t, 2, len(edits))

	port1 := edits[0].(map[string]interface{})
	assert.Equal(t, "port1", port1["edit"])
	assert.Equal(t, "root", port1["vdom"])
	assert.DeepEqual(t, port1["ip"],
		[]interface{}{"192.168.122.10", "255.255.255.0"})
	assert.DeepEqual(t, port1["allowaccess"],
		[]interface{}{"ping", "https", "ssh"})

	port2 := edits[1].(map[string]interface{})
	assert.Equal(t, "port2", port2["edit"])
	_, found := port2["ip"]
	assert.Assert(t, !found)
}

const vdomConfig = `
config vdom
edit root
config system interface
    edit "port1"
        set ip 10.0.0.1 255.255.255.0
    next
end
end
config global
config system global
    set hostname "fw"
end
end
`

func TestParseVdom(t *testing.T) {
	cnf, err := Parse(strings.NewReader(vdomConfig))
	assert.NilError(t, err)
	configs := cnf["configs"].([]interface{})
	assert.Equal(t, 2, len(configs))

	// The vdom edit is closed by the enclosing "end", without "next".
	vdom := configs[0].(map[string]interface{})
	assert.Equal(t, "vdom", vdom["config"])
	edits := vdom["edits"].([]interface{})
	root := edits[0].(map[string]interface{})
	assert.Equal(t, "root", root["edit"])
	sub := root["configs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "system interface", sub["config"])

	// "config global" nests whole sections without edits.
	global := configs[1].(map[string]interface{})
	assert.Equal(t, "global", global["config"])
	gsub := global["configs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "system global", gsub["config"])
	assert.Equal(t, "fw", gsub["hostname"])
}

func TestSplitLine(t *testing.T) {
	assert.DeepEqual(t,
		splitLine(`set comment "a b \" c"`),
		[]string{"set", "comment", `a b " c`})
	assert.DeepEqual(t, splitLine(`set alias ""`),
		[]string{"set", "alias", ""})
	assert.DeepEqual(t, splitLine("set ip 10.0.0.1 255.0.0.0"),
		[]string{"set", "ip", "10.0.0.1", "255.0.0.0"})
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.conf")
	assert.NilError(t, os.WriteFile(path, []byte(flatConfig), 0644))
	cnf, err := ParseFile(path)
	assert.NilError(t, err)
	assert.Equal(t, 2, len(cnf["configs"].([]interface{})))

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.conf"))
	assert.ErrorContains(t, err, "missing.conf")
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("set foo bar\n"))
	assert.ErrorContains(t, err, "expected 'config'")

	_, err = Parse(strings.NewReader("config system global\n"))
	assert.ErrorContains(t, err, "unexpected end of input")

	_, err = Parse(strings.NewReader(
		"config system interface\n  edit \"p1\"\n    bogus\n  next\nend\n"))
	assert.ErrorContains(t, err, `unexpected "bogus"`)
}
