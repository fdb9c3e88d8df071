// Package firewallcli implements the ffirewall command with two
// subcommands: "save" builds the resolved firewall policy table of a
// parsed device configuration and saves it, "search" finds the
// policies of a saved table that match an IP address.
package firewallcli

import (
	"encoding/json"
	"fmt"

	"github.com/fortiscope/fortiscope/pkg/conf"
	"github.com/fortiscope/fortiscope/pkg/diag"
	"github.com/fortiscope/fortiscope/pkg/firewall"
	"github.com/fortiscope/fortiscope/pkg/oslink"
	"github.com/fortiscope/fortiscope/pkg/parser"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func Main(d oslink.Data) int {
	fs := pflag.NewFlagSet(d.Args[0], pflag.ContinueOnError)

	// Setup custom usage function.
	fs.Usage = func() {
		fmt.Fprintf(d.Stderr,
			"Usage: %s [options] save FILE | search TABLE\n%s",
			d.Args[0], fs.FlagUsages())
	}

	// Command line flags
	cfg := conf.Defaults(fs)
	output := fs.StringP("output", "o", "firewall_policy_table.json",
		"File to save the policy table to (save)")
	ip := fs.StringP("ip", "i", "", "IP address to search policies for (search)")
	cfgFile := fs.StringP("config", "c", "", "Read options from file")
	if err := fs.Parse(d.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 1
		}
		fmt.Fprintf(d.Stderr, "Error: %s\n", err)
		fs.Usage()
		return 1
	}
	if *cfgFile != "" {
		if err := conf.FromFile(*cfgFile, fs); err != nil {
			fmt.Fprintf(d.Stderr, "Error: %s\n", err)
			return 1
		}
	}

	// Argument processing
	args := fs.Args()
	if len(args) != 2 {
		fs.Usage()
		return 1
	}
	cmd, path := args[0], args[1]

	log := diag.New(d.Stderr, cfg.Quiet)
	var err error
	switch cmd {
	case "save":
		err = savePolicies(path, *output, cfg.Vdom, log)
	case "search":
		if *ip == "" {
			fmt.Fprintf(d.Stderr, "Error: search needs --ip\n")
			fs.Usage()
			return 1
		}
		err = searchPolicies(d, path, *ip)
	default:
		fs.Usage()
		return 1
	}
	if err != nil {
		fmt.Fprintf(d.Stderr, "Error: %s\n", err)
		return 1
	}
	return 0
}

func savePolicies(path, output, vdom string, log *zap.SugaredLogger) error {
	cnf, err := parser.Load(path)
	if err != nil {
		return err
	}
	hasVdoms := parser.HasVdom(cnf)
	table, err := firewall.CombinedAddressTable(cnf, hasVdoms, vdom)
	if err != nil {
		return err
	}
	policies, err := firewall.PolicyTable(cnf, table, hasVdoms, vdom)
	if err != nil {
		return err
	}
	if err := firewall.SavePolicyTable(output, policies); err != nil {
		return err
	}
	log.Infof("saved: %s (%d policies)", output, len(policies))
	return nil
}

func searchPolicies(d oslink.Data, path, ip string) error {
	table, err := firewall.LoadPolicyTable(path)
	if err != nil {
		return err
	}
	found := firewall.SearchPoliciesByIP(ip, table)
	enc := json.NewEncoder(d.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(found)
}
