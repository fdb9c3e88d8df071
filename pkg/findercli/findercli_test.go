package findercli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fortiscope/fortiscope/pkg/network"
	"github.com/fortiscope/fortiscope/pkg/oslink"
	"gotest.tools/assert"
)

func saveGraph(t *testing.T) string {
	t.Helper()
	node := func(id, typ string, addrs ...string) *network.Node {
		return network.NewNode(id, typ, addrs)
	}
	doc := &network.Document{
		Nodes: []*network.Node{
			node("fw", network.NodeFirewall, "10.0.1.1/24", "10.0.2.1/24"),
			node("10.0.1.0/24", network.NodeNetwork, "10.0.1.0/24"),
			node("10.0.2.0/24", network.NodeNetwork, "10.0.2.0/24"),
		},
		Links: []*network.Edge{
			{ID: "fw_10.0.1.0/24", Type: "edge",
				Source: "fw", Target: "10.0.1.0/24", Distance: 1},
			{ID: "fw_10.0.2.0/24", Type: "edge",
				Source: "fw", Target: "10.0.2.0/24", Distance: 1},
		},
	}
	path := filepath.Join(t.TempDir(), "graph.json")
	assert.NilError(t, doc.Save(path))
	return path
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	status := Main(oslink.Data{
		Args:   append([]string{"ffinder"}, args...),
		Stdout: &stdout,
		Stderr: &stderr,
	})
	return status, stdout.String(), stderr.String()
}

func TestNodesCommand(t *testing.T) {
	graph := saveGraph(t)
	status, stdout, stderr := run("nodes", graph, "10.0.1.5")
	assert.Equal(t, 0, status, stderr)
	assert.Assert(t, strings.Contains(stdout, `"10.0.1.0/24"`))

	status, stdout, _ = run("nodes", graph, "127.0.0.1")
	assert.Equal(t, 0, status)
	assert.Equal(t, "null\n", stdout)
}

func TestPathsCommand(t *testing.T) {
	graph := saveGraph(t)
	status, stdout, stderr := run("paths", graph, "10.0.1.5", "10.0.2.5")
	assert.Equal(t, 0, status, stderr)
	assert.Assert(t, strings.Contains(stdout, `"fw"`))

	status, stdout, _ = run("-t", "firewall", "paths", graph,
		"10.0.1.5", "10.0.2.5")
	assert.Equal(t, 0, status)
	assert.Assert(t, strings.Contains(stdout, `"fw"`))
	assert.Assert(t, !strings.Contains(stdout, `"10.0.1.0/24"`))
}

func TestFinderErrors(t *testing.T) {
	status, _, stderr := run("nodes", "no-such-graph.json", "10.0.1.5")
	assert.Equal(t, 1, status)
	assert.Assert(t, strings.Contains(stderr, "Error:"))

	status, _, _ = run("bogus", saveGraph(t), "10.0.1.5")
	assert.Equal(t, 1, status)
}
