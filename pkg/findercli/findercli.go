// Package findercli implements the ffinder command with two
// subcommands over a saved graph document: "nodes" lists the nodes
// enclosing an IP address, "paths" lists the shortest paths between
// the networks of two IP addresses.
package findercli

import (
	"encoding/json"
	"fmt"

	"github.com/fortiscope/fortiscope/pkg/conf"
	"github.com/fortiscope/fortiscope/pkg/finder"
	"github.com/fortiscope/fortiscope/pkg/oslink"
	"github.com/spf13/pflag"
)

func Main(d oslink.Data) int {
	fs := pflag.NewFlagSet(d.Args[0], pflag.ContinueOnError)

	// Setup custom usage function.
	fs.Usage = func() {
		fmt.Fprintf(d.Stderr,
			"Usage: %s [options] nodes GRAPH IP | paths GRAPH SRC DST\n%s",
			d.Args[0], fs.FlagUsages())
	}

	// Command line flags
	conf.Defaults(fs)
	nodeType := fs.StringP("node-type", "t", "",
		"Keep only nodes of this type in found paths")
	weighted := fs.BoolP("weighted", "w", false,
		"Rank paths by summed network distance instead of hop count")
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
	if len(args) < 3 {
		fs.Usage()
		return 1
	}
	cmd := args[0]

	g, err := finder.LoadFile(args[1])
	if err != nil {
		fmt.Fprintf(d.Stderr, "Error: %s\n", err)
		return 1
	}

	enc := json.NewEncoder(d.Stdout)
	enc.SetIndent("", "  ")
	switch {
	case cmd == "nodes" && len(args) == 3:
		err = enc.Encode(finder.NodesByIP(g, args[2]))
	case cmd == "paths" && len(args) == 4:
		var opts []finder.Option
		if *nodeType != "" {
			opts = append(opts, finder.WithNodeType(*nodeType))
		}
		if *weighted {
			opts = append(opts, finder.WithWeighted())
		}
		err = enc.Encode(finder.FindPaths(g, args[2], args[3], opts...))
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
