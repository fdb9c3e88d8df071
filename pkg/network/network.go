// Package network synthesizes a topology graph from a parsed firewall
// configuration: one node for the device itself, one per network
// reachable through an interface, and one per network referenced by an
// address object, connected by edges weighted with the computed
// network distance. Graph documents of several devices merge into one
// combined document.
package network

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fortiscope/fortiscope/pkg/fileop"
	"github.com/fortiscope/fortiscope/pkg/netutils"
	"github.com/fortiscope/fortiscope/pkg/parser"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FormatVersion of the graph document.
const FormatVersion = "1.0"

// Finite stand-in for an infinite distance, so that documents stay
// serializable as plain JSON.
const infDistance = 64

// Node types.
const (
	NodeAny      = "any"
	NodeNetwork  = "network"
	NodeHost     = "host"
	NodeRouter   = "router"
	NodeSwitch   = "switch"
	NodeFirewall = "firewall"
)

// NodeTypes enumerates all node types; TypeID is an index into it.
var NodeTypes = []string{
	NodeAny, NodeNetwork, NodeHost, NodeRouter, NodeSwitch, NodeFirewall,
}

func typeID(typ string) int {
	for i, t := range NodeTypes {
		if t == typ {
			return i
		}
	}
	return 0
}

// Node is one vertex of the graph document. ID is the hostname for
// the firewall node and the canonical prefix for network nodes, and is
// unique across a document.
type Node struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	Type   string   `json:"type" yaml:"type"`
	TypeID int      `json:"type_id" yaml:"type_id"`
	Addrs  []string `json:"addrs" yaml:"addrs"`
	Class  string   `json:"class,omitempty" yaml:"class,omitempty"`
	Label  string   `json:"label,omitempty" yaml:"label,omitempty"`
}

func (n *Node) decorate() {
	n.Class = "node " + n.Type
	n.Label = n.ID + " " + n.Type
}

// NewNode returns a decorated node of the given type.
func NewNode(id, typ string, addrs []string) *Node {
	n := &Node{ID: id, Name: id, Type: typ, TypeID: typeID(typ), Addrs: addrs}
	n.decorate()
	return n
}

func newNetNode(net string) *Node {
	return NewNode(net, NodeNetwork, []string{net})
}

// Edge is one undirected link of the graph document, weighted by
// network distance. Its id derives from the ordered endpoint pair.
type Edge struct {
	ID       string  `json:"id" yaml:"id"`
	Type     string  `json:"type" yaml:"type"`
	Source   string  `json:"source" yaml:"source"`
	Target   string  `json:"target" yaml:"target"`
	Distance float64 `json:"distance" yaml:"distance"`
}

func newEdge(source, target string, distance float64) *Edge {
	return &Edge{
		ID:       source + "_" + target,
		Type:     "edge",
		Source:   source,
		Target:   target,
		Distance: distance,
	}
}

// Metadata describes the origin of a graph document.
type Metadata struct {
	Type      string   `json:"type,omitempty" yaml:"type,omitempty"`
	Input     string   `json:"input,omitempty" yaml:"input,omitempty"`
	Inputs    []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Prefix    int      `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Timestamp string   `json:"timestamp" yaml:"timestamp"`
	Version   string   `json:"version" yaml:"version"`
}

// Document is one self-contained graph: metadata, nodes and links.
type Document struct {
	Metadata Metadata `json:"metadata" yaml:"metadata"`
	Nodes    []*Node  `json:"nodes" yaml:"nodes"`
	Links    []*Edge  `json:"links" yaml:"links"`
}

// NoInterfaceError reports a configuration without any interface
// address, leaving nothing to anchor the graph to.
type NoInterfaceError struct {
	Host string
}

func (e *NoInterfaceError) Error() string {
	return fmt.Sprintf("no interface addresses found for %q", e.Host)
}

// InterfacePrefixes lists the configured interface addresses in
// unmasked "addr/bits" form.
func InterfacePrefixes(
	cnf map[string]interface{}, hasVdoms bool, vdom string,
) ([]string, error) {
	res, err := parser.Search(
		"configs[?config=='system interface'].edits[].ip", cnf, hasVdoms, vdom)
	if err != nil {
		return nil, err
	}
	var prefixes []string
	for _, v := range res {
		pair, ok := v.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, errors.Errorf("unexpected interface ip value %v", v)
		}
		addr, _ := pair[0].(string)
		mask, _ := pair[1].(string)
		p, err := netutils.WithMask(addr, mask)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}

// AddressPrefixes lists the distinct prefixes named by firewall
// address objects in first-seen order: the network address of every
// subnet pair plus the host addresses of every enumerated range.
// Fqdn and group-only objects contribute nothing.
func AddressPrefixes(
	cnf map[string]interface{}, hasVdoms bool, vdom string,
) ([]string, error) {
	edits, err := parser.ConfigEdits("firewall address", cnf, hasVdoms, vdom)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var nets []string
	add := func(net string) {
		if !seen[net] {
			seen[net] = true
			nets = append(nets, net)
		}
	}
	for _, e := range edits {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		if pair, ok := m["subnet"].([]interface{}); ok && len(pair) == 2 {
			addr, _ := pair[0].(string)
			mask, _ := pair[1].(string)
			net, err := netutils.NetworkAddress(addr, mask)
			if err != nil {
				return nil, err
			}
			add(net)
			continue
		}
		if start, ok := m["start-ip"].(string); ok {
			end, _ := m["end-ip"].(string)
			hosts, err := netutils.RangeToPrefixes(start, end, 32)
			if err != nil {
				return nil, err
			}
			for _, h := range hosts {
				add(h)
			}
		}
	}
	return nets, nil
}

type builder struct {
	nodes    []*Node
	links    []*Edge
	nodeSeen map[string]bool
	edgeSeen map[string]bool
}

func newBuilder() *builder {
	return &builder{
		nodeSeen: make(map[string]bool),
		edgeSeen: make(map[string]bool),
	}
}

func (b *builder) addNode(n *Node) {
	if b.nodeSeen[n.ID] {
		return
	}
	b.nodeSeen[n.ID] = true
	b.nodes = append(b.nodes, n)
}

func (b *builder) addEdge(source, target string, distance float64) {
	e := newEdge(source, target, distance)
	if b.edgeSeen[e.ID] {
		return
	}
	b.edgeSeen[e.ID] = true
	b.links = append(b.links, e)
}

// attach connects each candidate network to its nearest interface
// network. An infinite distance degrades to the finite sentinel.
func (b *builder) attach(inets, nets []string) error {
	for _, net := range nets {
		inet, err := netutils.NearestNetwork(net, inets)
		if err != nil {
			return err
		}
		if inet == net {
			continue
		}
		d, err := netutils.Distance(net, inet)
		if err != nil {
			return err
		}
		if math.IsInf(d, 1) {
			d = infDistance
		}
		b.addNode(newNetNode(net))
		b.addEdge(inet, net, d)
	}
	return nil
}

func member(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

// Build synthesizes the graph document of one device configuration.
// The input string only identifies the source in the metadata.
// Networks named by address objects are anchored at their nearest
// interface network; host-only address objects are first summarized to
// their enclosing /maxBits network.
func Build(
	cnf map[string]interface{}, input string, maxBits int,
) (*Document, error) {
	hasVdoms := parser.HasVdom(cnf)
	hostname, err := parser.Hostname(cnf, hasVdoms)
	if err != nil {
		return nil, err
	}
	ifaces, err := InterfacePrefixes(cnf, hasVdoms, "")
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		return nil, &NoInterfaceError{Host: hostname}
	}

	b := newBuilder()
	b.addNode(NewNode(hostname, NodeFirewall, ifaces))

	var inets []string
	for _, ifp := range ifaces {
		net, err := netutils.Masked(ifp)
		if err != nil {
			return nil, err
		}
		inets = append(inets, net)
		b.addNode(newNetNode(net))
		b.addEdge(hostname, net, 1)
	}

	nfas, err := AddressPrefixes(cnf, hasVdoms, "")
	if err != nil {
		return nil, err
	}

	// Networks directly connected to the interface networks.
	var cnets []string
	for _, a := range nfas {
		if netutils.IsNetwork(a) && !member(inets, a) && a != "0.0.0.0/32" {
			cnets = append(cnets, a)
		}
	}
	if err := b.attach(inets, cnets); err != nil {
		return nil, err
	}

	// Remaining host addresses outside any placed network are
	// summarized to their enclosing /maxBits network.
	seen := make(map[string]bool)
	var summarized []string
	for _, a := range nfas {
		if a == "0.0.0.0/32" || member(cnets, a) || member(inets, a) ||
			netutils.Contains(a, cnets) {
			continue
		}
		super, err := netutils.SupernetOf(a, uint8(maxBits))
		if err != nil {
			return nil, err
		}
		if !seen[super] {
			seen[super] = true
			summarized = append(summarized, super)
		}
	}
	sort.Strings(summarized)
	if err := b.attach(inets, summarized); err != nil {
		return nil, err
	}

	return &Document{
		Metadata: Metadata{
			Type:      "metadata",
			Input:     input,
			Prefix:    maxBits,
			Timestamp: time.Now().Format(time.RFC3339),
			Version:   FormatVersion,
		},
		Nodes: b.nodes,
		Links: b.links,
	}, nil
}

// Merge combines several graph documents into one. Nodes are unified
// by id with first-seen attributes winning, but class and label are
// recomputed for every merged node; duplicate edges collapse. The
// merged metadata lists every source input.
func Merge(docs []*Document) *Document {
	merged := &Document{
		Metadata: Metadata{
			Timestamp: time.Now().Format(time.RFC3339),
			Version:   FormatVersion,
		},
	}
	nodeSeen := make(map[string]bool)
	edgeSeen := make(map[string]bool)
	for _, d := range docs {
		if d == nil {
			continue
		}
		if d.Metadata.Input != "" {
			merged.Metadata.Inputs = append(merged.Metadata.Inputs, d.Metadata.Input)
		}
		merged.Metadata.Inputs = append(merged.Metadata.Inputs, d.Metadata.Inputs...)
		for _, n := range d.Nodes {
			if nodeSeen[n.ID] {
				continue
			}
			nodeSeen[n.ID] = true
			c := *n
			c.TypeID = typeID(c.Type)
			c.decorate()
			merged.Nodes = append(merged.Nodes, &c)
		}
		for _, e := range d.Links {
			if edgeSeen[e.ID] {
				continue
			}
			edgeSeen[e.ID] = true
			merged.Links = append(merged.Links, e)
		}
	}
	return merged
}

// Save writes the document as JSON or, for .yml/.yaml paths, as YAML.
func (d *Document) Save(path string) error {
	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		data, err = yaml.Marshal(d)
	default:
		data, err = json.MarshalIndent(d, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	return fileop.Overwrite(path, data)
}

// LoadDocument reads a graph document saved by Save. Structural
// validation happens when the document is materialized into a graph.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var d Document
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &d)
	default:
		err = json.Unmarshal(data, &d)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &d, nil
}
