// Package firewall resolves firewall address objects to canonical IP
// prefixes and builds the policy table, with every symbolic source and
// destination reference bound to the prefixes it stands for.
package firewall

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/fortiscope/fortiscope/pkg/fileop"
	"github.com/fortiscope/fortiscope/pkg/netutils"
	"github.com/fortiscope/fortiscope/pkg/parser"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AddressKind tags how an address object was resolved. It is decided
// once at resolution time and never re-derived from raw fields.
type AddressKind string

const (
	KindUnresolved AddressKind = ""        // fqdn, wildcard-fqdn or empty
	KindHost       AddressKind = "host"    // single address from a subnet pair
	KindNetwork    AddressKind = "network" // real network from a subnet pair
	KindRange      AddressKind = "ipset"   // enumerated start-ip/end-ip range
)

// AddressRecord is one resolved firewall address edit. Exactly one of
// Addr (host/network kinds) and Addrs (range kind, group rows) is
// populated for resolvable kinds; unresolved kinds have neither.
type AddressRecord struct {
	Edit                string      `json:"edit" yaml:"edit"`
	UUID                string      `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Type                string      `json:"type,omitempty" yaml:"type,omitempty"`
	Kind                AddressKind `json:"addr_type,omitempty" yaml:"addr_type,omitempty"`
	Addr                string      `json:"addr,omitempty" yaml:"addr,omitempty"`
	Addrs               []string    `json:"addrs,omitempty" yaml:"addrs,omitempty"`
	Member              string      `json:"member,omitempty" yaml:"member,omitempty"`
	Comment             string      `json:"comment,omitempty" yaml:"comment,omitempty"`
	AssociatedInterface string      `json:"associated-interface,omitempty" yaml:"associated-interface,omitempty"`
}

// prefixes returns every canonical prefix the record resolves to.
func (r *AddressRecord) prefixes() []string {
	if r.Addr != "" {
		return append([]string{r.Addr}, r.Addrs...)
	}
	return r.Addrs
}

// GroupMemberRecord is one (group, member) pair of a firewall address
// group, one row per member.
type GroupMemberRecord struct {
	Edit   string `json:"edit" yaml:"edit"`
	UUID   string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Member string `json:"member" yaml:"member"`
}

// PolicyRecord is one firewall policy edit with its symbolic address
// references resolved to canonical prefixes.
type PolicyRecord struct {
	Edit     string   `json:"edit" yaml:"edit"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	UUID     string   `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	SrcIntf  []string `json:"srcintf,omitempty" yaml:"srcintf,omitempty"`
	DstIntf  []string `json:"dstintf,omitempty" yaml:"dstintf,omitempty"`
	SrcAddr  []string `json:"srcaddr,omitempty" yaml:"srcaddr,omitempty"`
	DstAddr  []string `json:"dstaddr,omitempty" yaml:"dstaddr,omitempty"`
	SrcAddrs []string `json:"srcaddrs,omitempty" yaml:"srcaddrs,omitempty"`
	DstAddrs []string `json:"dstaddrs,omitempty" yaml:"dstaddrs,omitempty"`
	Action   string   `json:"action,omitempty" yaml:"action,omitempty"`
	Schedule string   `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Service  []string `json:"service,omitempty" yaml:"service,omitempty"`
	Comments string   `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// asString renders a scalar config value. Numeric edit ids from JSON
// input arrive as float64.
func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// asStringList renders a config value that may be a single reference
// or a list of references.
func asStringList(v interface{}) []string {
	switch l := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, e := range l {
			out = append(out, asString(e))
		}
		return out
	default:
		return []string{asString(v)}
	}
}

// ResolveAddressEdit turns one firewall address edit into an
// AddressRecord, dispatching on which raw fields are present:
// start-ip/end-ip enumerate to a range, a subnet pair converts to one
// prefix classified as host or network, anything else is unresolved.
// Address arithmetic errors propagate; a corrupt address would make
// policy results wrong, not just incomplete.
func ResolveAddressEdit(edit map[string]interface{}) (*AddressRecord, error) {
	rec := &AddressRecord{
		Edit:                asString(edit["edit"]),
		UUID:                asString(edit["uuid"]),
		Type:                asString(edit["type"]),
		Comment:             asString(edit["comment"]),
		AssociatedInterface: asString(edit["associated-interface"]),
	}
	if start, found := edit["start-ip"]; found {
		addrs, err := netutils.RangeToPrefixes(
			asString(start), asString(edit["end-ip"]), 32)
		if err != nil {
			return nil, errors.Wrapf(err, "address %q", rec.Edit)
		}
		rec.Kind = KindRange
		rec.Addrs = addrs
		return rec, nil
	}
	if subnet, found := edit["subnet"]; found {
		pair := asStringList(subnet)
		if len(pair) != 2 {
			return nil, errors.Errorf(
				"address %q: unexpected subnet value %v", rec.Edit, subnet)
		}
		prefix, err := netutils.SubnetToPrefix(pair[0], pair[1])
		if err != nil {
			return nil, errors.Wrapf(err, "address %q", rec.Edit)
		}
		if netutils.IsNetwork(prefix) {
			rec.Kind = KindNetwork
		} else {
			rec.Kind = KindHost
		}
		rec.Addr = prefix
		return rec, nil
	}
	rec.Kind = KindUnresolved
	return rec, nil
}

// AddressTable resolves every edit below "firewall address".
func AddressTable(
	cnf map[string]interface{}, hasVdoms bool, vdom string,
) ([]*AddressRecord, error) {
	edits, err := parser.ConfigEdits("firewall address", cnf, hasVdoms, vdom)
	if err != nil {
		return nil, err
	}
	var table []*AddressRecord
	for _, e := range edits {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		rec, err := ResolveAddressEdit(m)
		if err != nil {
			return nil, err
		}
		table = append(table, rec)
	}
	return table, nil
}

// AddrgrpTable extracts "firewall addrgrp" edits, expanded to one row
// per member.
func AddrgrpTable(
	cnf map[string]interface{}, hasVdoms bool, vdom string,
) ([]*GroupMemberRecord, error) {
	edits, err := parser.ConfigEdits("firewall addrgrp", cnf, hasVdoms, vdom)
	if err != nil {
		return nil, err
	}
	var table []*GroupMemberRecord
	for _, e := range edits {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		edit := asString(m["edit"])
		uuid := asString(m["uuid"])
		for _, member := range asStringList(m["member"]) {
			table = append(table, &GroupMemberRecord{
				Edit: edit, UUID: uuid, Member: member,
			})
		}
	}
	return table, nil
}

// CombinedAddressTable joins the group rows against the plain address
// rows by member name, so group names resolve like addresses: one
// extra row per group member inheriting the member's prefixes. Group
// rows whose member cannot be resolved keep empty prefixes rather
// than being dropped.
func CombinedAddressTable(
	cnf map[string]interface{}, hasVdoms bool, vdom string,
) ([]*AddressRecord, error) {
	fa, err := AddressTable(cnf, hasVdoms, vdom)
	if err != nil {
		return nil, err
	}
	groups, err := AddrgrpTable(cnf, hasVdoms, vdom)
	if err != nil {
		return nil, err
	}
	byEdit := make(map[string][]*AddressRecord)
	for _, r := range fa {
		byEdit[r.Edit] = append(byEdit[r.Edit], r)
	}
	combined := append([]*AddressRecord{}, fa...)
	for _, g := range groups {
		matches := byEdit[g.Member]
		if len(matches) == 0 {
			combined = append(combined, &AddressRecord{
				Edit: g.Edit, UUID: g.UUID, Member: g.Member,
			})
			continue
		}
		for _, m := range matches {
			combined = append(combined, &AddressRecord{
				Edit:   g.Edit,
				UUID:   g.UUID,
				Member: g.Member,
				Type:   m.Type,
				Kind:   m.Kind,
				Addr:   m.Addr,
				Addrs:  m.Addrs,
			})
		}
	}
	return combined, nil
}

// resolveRefs looks up each reference in the combined address table
// and returns the sorted, deduplicated union of all prefixes found.
func resolveRefs(refs []string, table []*AddressRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ref := range refs {
		for _, r := range table {
			if r.Edit != ref {
				continue
			}
			for _, p := range r.prefixes() {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// PolicyTable builds one record per "firewall policy" edit, resolving
// srcaddr/dstaddr references through the combined address table.
func PolicyTable(
	cnf map[string]interface{}, table []*AddressRecord,
	hasVdoms bool, vdom string,
) ([]*PolicyRecord, error) {
	edits, err := parser.ConfigEdits("firewall policy", cnf, hasVdoms, vdom)
	if err != nil {
		return nil, err
	}
	var policies []*PolicyRecord
	for _, e := range edits {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		rec := &PolicyRecord{
			Edit:     asString(m["edit"]),
			Name:     asString(m["name"]),
			UUID:     asString(m["uuid"]),
			SrcIntf:  asStringList(m["srcintf"]),
			DstIntf:  asStringList(m["dstintf"]),
			SrcAddr:  asStringList(m["srcaddr"]),
			DstAddr:  asStringList(m["dstaddr"]),
			Action:   asString(m["action"]),
			Schedule: asString(m["schedule"]),
			Service:  asStringList(m["service"]),
			Comments: asString(m["comments"]),
		}
		if len(rec.SrcAddr) > 0 {
			rec.SrcAddrs = resolveRefs(rec.SrcAddr, table)
		}
		if len(rec.DstAddr) > 0 {
			rec.DstAddrs = resolveRefs(rec.DstAddr, table)
		}
		policies = append(policies, rec)
	}
	return policies, nil
}

// SearchAddressesByIP returns the address records whose resolved
// prefixes contain ip. A bare ip is taken as /32.
func SearchAddressesByIP(ip string, table []*AddressRecord) []*AddressRecord {
	ipa := netutils.Normalize(ip)
	var found []*AddressRecord
	for _, r := range table {
		if netutils.Contains(ipa, r.prefixes()) {
			found = append(found, r)
		}
	}
	return found
}

// SearchPoliciesByIP returns the policy records whose resolved source
// or destination prefixes contain ip.
func SearchPoliciesByIP(ip string, table []*PolicyRecord) []*PolicyRecord {
	ipa := netutils.Normalize(ip)
	var found []*PolicyRecord
	for _, r := range table {
		if netutils.Contains(ipa, r.SrcAddrs) || netutils.Contains(ipa, r.DstAddrs) {
			found = append(found, r)
		}
	}
	return found
}

// SavePolicyTable writes a policy table as a JSON list of records.
func SavePolicyTable(path string, table []*PolicyRecord) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	return fileop.Overwrite(path, append(data, '\n'))
}

// LoadPolicyTable reads a policy table saved by SavePolicyTable.
// YAML input is accepted as well, selected by file extension.
func LoadPolicyTable(path string) ([]*PolicyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var table []*PolicyRecord
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &table)
	default:
		err = json.Unmarshal(data, &table)
	}
	return table, errors.Wrapf(err, "decoding %s", path)
}
