// Package finder materializes a graph document into an in-memory
// graph and answers queries over it: which nodes enclose a given IP,
// and the shortest paths between the networks of two IPs.
package finder

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fortiscope/fortiscope/pkg/netutils"
	"github.com/fortiscope/fortiscope/pkg/network"
)

// InvalidGraphError reports a graph document without usable nodes or
// links.
type InvalidGraphError struct {
	Path   string
	Reason string
}

func (e *InvalidGraphError) Error() string {
	if e.Path == "" {
		return "invalid graph data: " + e.Reason
	}
	return fmt.Sprintf("invalid graph data in %s: %s", e.Path, e.Reason)
}

// Graph is an undirected graph over the nodes of a graph document,
// with edges weighted by network distance. Node iteration follows
// document order.
type Graph struct {
	order []string
	nodes map[string]*network.Node
	adj   map[string]map[string]float64
}

func (g *Graph) addNode(n *network.Node) {
	if _, found := g.nodes[n.ID]; found {
		return
	}
	g.order = append(g.order, n.ID)
	g.nodes[n.ID] = n
	g.adj[n.ID] = make(map[string]float64)
}

// Nodes returns all nodes in document order.
func (g *Graph) Nodes() []*network.Node {
	nodes := make([]*network.Node, len(g.order))
	for i, id := range g.order {
		nodes[i] = g.nodes[id]
	}
	return nodes
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *network.Node {
	return g.nodes[id]
}

// Load validates a graph document and builds the graph. Endpoints of
// an edge without a node record become bare placeholder nodes, like a
// loose link in the source data.
func Load(doc *network.Document) (*Graph, error) {
	if doc == nil {
		return nil, &InvalidGraphError{Reason: "no data"}
	}
	if len(doc.Nodes) == 0 {
		return nil, &InvalidGraphError{Reason: "nodes not found"}
	}
	if len(doc.Links) == 0 {
		return nil, &InvalidGraphError{Reason: "links not found"}
	}
	g := &Graph{
		nodes: make(map[string]*network.Node),
		adj:   make(map[string]map[string]float64),
	}
	for _, n := range doc.Nodes {
		g.addNode(n)
	}
	for _, e := range doc.Links {
		for _, id := range []string{e.Source, e.Target} {
			if _, found := g.nodes[id]; !found {
				g.addNode(&network.Node{ID: id, Name: id})
			}
		}
		g.adj[e.Source][e.Target] = e.Distance
		g.adj[e.Target][e.Source] = e.Distance
	}
	return g, nil
}

// LoadFile reads a graph document from path and builds the graph.
func LoadFile(path string) (*Graph, error) {
	doc, err := network.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	g, err := Load(doc)
	if err != nil {
		if ige, ok := err.(*InvalidGraphError); ok {
			ige.Path = path
		}
		return nil, err
	}
	return g, nil
}

// Cache is an explicit, caller-held cache of loaded graphs keyed by
// file path. There is no hidden package-level state; callers that
// load the same document repeatedly hold one Cache instead.
type Cache struct {
	graphs map[string]*Graph
}

func NewCache() *Cache {
	return &Cache{graphs: make(map[string]*Graph)}
}

// Load returns the cached graph for path, loading it on first use.
func (c *Cache) Load(path string) (*Graph, error) {
	if g, found := c.graphs[path]; found {
		return g, nil
	}
	g, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.graphs[path] = g
	return g, nil
}

func prefixLen(n *network.Node) int {
	if len(n.Addrs) == 0 {
		return -1
	}
	// Network nodes carry their single prefix as addrs[0].
	p, err := netutils.ToNetwork(n.Addrs[0])
	if err != nil {
		return -1
	}
	return int(p.Bits())
}

// NodesByIP returns the nodes whose address set contains ip, most
// specific first. Nodes with equal prefix length keep document order.
func NodesByIP(g *Graph, ip string) []*network.Node {
	var found []*network.Node
	for _, n := range g.Nodes() {
		if netutils.Contains(ip, n.Addrs) {
			found = append(found, n)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return prefixLen(found[i]) > prefixLen(found[j])
	})
	return found
}

// NodeByIP returns the most specific node enclosing ip, or nil.
func NodeByIP(g *Graph, ip string) *network.Node {
	nodes := NodesByIP(g, ip)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

type options struct {
	nodeType string
	weighted bool
}

// Option modifies a path query.
type Option func(*options)

// WithNodeType keeps only nodes of the given type in each found path.
// The wildcard type "any" matches every node.
func WithNodeType(t string) Option {
	return func(o *options) { o.nodeType = t }
}

// WithWeighted ranks paths by summed edge distance instead of hop
// count.
func WithWeighted() Option {
	return func(o *options) { o.weighted = true }
}

// sortedNeighbors returns the neighbor ids of u in lexical order, so
// that repeated queries traverse the graph identically.
func (g *Graph) sortedNeighbors(u string) []string {
	nbs := make([]string, 0, len(g.adj[u]))
	for v := range g.adj[u] {
		nbs = append(nbs, v)
	}
	sort.Strings(nbs)
	return nbs
}

// allShortestPaths returns every shortest path between src and dst as
// node id sequences, or nothing when dst is unreachable.
func (g *Graph) allShortestPaths(src, dst string, weighted bool) [][]string {
	parents := make(map[string][]string)
	if weighted {
		g.dijkstraParents(src, parents)
	} else {
		g.bfsParents(src, parents)
	}
	return buildPaths(parents, src, dst)
}

func (g *Graph) bfsParents(src string, parents map[string][]string) {
	dist := map[string]int{src: 0}
	queue := []string{src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.sortedNeighbors(u) {
			if _, seen := dist[v]; !seen {
				dist[v] = dist[u] + 1
				parents[v] = []string{u}
				queue = append(queue, v)
			} else if dist[v] == dist[u]+1 {
				parents[v] = append(parents[v], u)
			}
		}
	}
}

func (g *Graph) dijkstraParents(src string, parents map[string][]string) {
	dist := map[string]float64{src: 0}
	done := make(map[string]bool)
	for {
		// Smallest unfinished distance; ties by id for determinism.
		u, best := "", math.Inf(1)
		for _, id := range g.order {
			if done[id] {
				continue
			}
			d, seen := dist[id]
			if !seen {
				continue
			}
			if d < best || (d == best && (u == "" || id < u)) {
				u, best = id, d
			}
		}
		if u == "" {
			return
		}
		done[u] = true
		for _, v := range g.sortedNeighbors(u) {
			nd := dist[u] + g.adj[u][v]
			cur, seen := dist[v]
			switch {
			case !seen || nd < cur:
				dist[v] = nd
				parents[v] = []string{u}
			case nd == cur:
				parents[v] = append(parents[v], u)
			}
		}
	}
}

func buildPaths(parents map[string][]string, src, dst string) [][]string {
	if dst == src {
		return [][]string{{src}}
	}
	var paths [][]string
	for _, p := range parents[dst] {
		for _, sub := range buildPaths(parents, src, p) {
			path := make([]string, 0, len(sub)+1)
			path = append(path, sub...)
			path = append(path, dst)
			paths = append(paths, path)
		}
	}
	return paths
}

// FindPaths resolves src and dst to their most specific enclosing
// nodes and returns every shortest path between them as ordered node
// records. An IP outside the known topology, or an unreachable
// destination, yields an empty result rather than an error. When both
// IPs fall into the same node the result is that single-node path.
func FindPaths(g *Graph, src, dst string, opts ...Option) [][]*network.Node {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	filtered := o.nodeType != "" && o.nodeType != network.NodeAny

	srcNode := NodeByIP(g, src)
	dstNode := NodeByIP(g, dst)
	if srcNode == nil || dstNode == nil {
		return nil
	}
	if srcNode.ID == dstNode.ID {
		if !filtered || srcNode.Type == o.nodeType {
			return [][]*network.Node{{srcNode}}
		}
		return nil
	}

	idPaths := g.allShortestPaths(srcNode.ID, dstNode.ID, o.weighted)
	var result [][]*network.Node
	seen := make(map[string]bool)
	for _, ids := range idPaths {
		var path []*network.Node
		for _, id := range ids {
			n := g.nodes[id]
			if filtered && n.Type != o.nodeType {
				continue
			}
			path = append(path, n)
		}
		if filtered {
			// Filtered paths may degenerate to the same sequence.
			key := pathKey(path)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		result = append(result, path)
	}
	return result
}

func pathKey(path []*network.Node) string {
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.ID
	}
	return strings.Join(ids, "\x1f")
}
