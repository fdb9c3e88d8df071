package networkcli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fortiscope/fortiscope/pkg/fortios"
	"github.com/fortiscope/fortiscope/pkg/network"
	"github.com/fortiscope/fortiscope/pkg/oslink"
	"github.com/fortiscope/fortiscope/pkg/parser"
	"gotest.tools/assert"
)

const config = `
config system global
    set hostname "fortigate-01"
end
config system interface
    edit "port1"
        set ip 192.168.122.10 255.255.255.0
    next
end
config firewall address
    edit "net_192.168.5.0"
        set subnet 192.168.5.0 255.255.255.0
    next
end
`

// saveParsed stores the parsed config tree the way fparse would.
func saveParsed(t *testing.T, dir string) string {
	t.Helper()
	cnf, err := fortios.Parse(strings.NewReader(config))
	assert.NilError(t, err)
	assert.NilError(t, parser.Validate(cnf, "fw.conf"))
	data, err := json.Marshal(cnf)
	assert.NilError(t, err)
	path := filepath.Join(dir, "all.json")
	assert.NilError(t, os.WriteFile(path, data, 0644))
	return path
}

func run(args ...string) (int, string) {
	var stdout, stderr bytes.Buffer
	status := Main(oslink.Data{
		Args:   append([]string{"fnetwork"}, args...),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return status, stderr.String()
}

func TestMakeAndCompose(t *testing.T) {
	dir := t.TempDir()
	parsed := saveParsed(t, dir)
	outdir := filepath.Join(dir, "out")

	status, stderr := run("-q", "-O", outdir, "make", parsed)
	assert.Equal(t, 0, status, stderr)

	graph := filepath.Join(outdir, "fortigate-01", GraphFilename)
	doc, err := network.LoadDocument(graph)
	assert.NilError(t, err)
	assert.Equal(t, 3, len(doc.Nodes))

	merged := filepath.Join(dir, "merged.json")
	status, stderr = run("-q", "-o", merged, "compose", graph, graph)
	assert.Equal(t, 0, status, stderr)

	mdoc, err := network.LoadDocument(merged)
	assert.NilError(t, err)
	assert.Equal(t, len(doc.Nodes), len(mdoc.Nodes))
	assert.Equal(t, len(doc.Links), len(mdoc.Links))
}

func TestBadSubcommand(t *testing.T) {
	status, stderr := run("frobnicate", "x.json")
	assert.Equal(t, 1, status)
	assert.Assert(t, stderr != "")
}
