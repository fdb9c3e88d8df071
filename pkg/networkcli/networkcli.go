// Package networkcli implements the fnetwork command with two
// subcommands: "make" synthesizes the graph document of each parsed
// device configuration, "compose" merges graph documents into one.
package networkcli

import (
	"fmt"
	"path/filepath"

	"github.com/fortiscope/fortiscope/pkg/conf"
	"github.com/fortiscope/fortiscope/pkg/diag"
	"github.com/fortiscope/fortiscope/pkg/network"
	"github.com/fortiscope/fortiscope/pkg/oslink"
	"github.com/fortiscope/fortiscope/pkg/parser"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// GraphFilename is the name graph documents are saved under when
// "make" derives the path from the device hostname.
const GraphFilename = "networks.yml"

func Main(d oslink.Data) int {
	fs := pflag.NewFlagSet(d.Args[0], pflag.ContinueOnError)

	// Setup custom usage function.
	fs.Usage = func() {
		fmt.Fprintf(d.Stderr,
			"Usage: %s [options] make|compose FILE ...\n%s",
			d.Args[0], fs.FlagUsages())
	}

	// Command line flags
	cfg := conf.Defaults(fs)
	outdir := fs.StringP("outdir", "O", "out",
		"Directory to save graph documents under (make)")
	output := fs.StringP("output", "o", "graph.json",
		"File to save the merged graph document to (compose)")
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
	if len(args) < 2 {
		fs.Usage()
		return 1
	}
	cmd, files := args[0], args[1:]

	log := diag.New(d.Stderr, cfg.Quiet)
	var err error
	switch cmd {
	case "make":
		err = makeGraphs(files, *outdir, cfg.MaxPrefix, log)
	case "compose":
		err = composeGraphs(files, *output, log)
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

func makeGraphs(files []string, outdir string, maxBits int,
	log *zap.SugaredLogger) error {

	for _, path := range files {
		cnf, err := parser.Load(path)
		if err != nil {
			return err
		}
		doc, err := network.Build(cnf, path, maxBits)
		if err != nil {
			return err
		}
		hn := graphHostname(doc)
		if hn == "" {
			hn = "unknown"
		}
		out := filepath.Join(outdir, hn, GraphFilename)
		if err := doc.Save(out); err != nil {
			return err
		}
		log.Infof("saved: %s", out)
	}
	return nil
}

// graphHostname returns the id of the firewall node, the natural name
// for the per-device output directory.
func graphHostname(doc *network.Document) string {
	for _, n := range doc.Nodes {
		if n.Type == network.NodeFirewall {
			return n.ID
		}
	}
	return ""
}

func composeGraphs(files []string, output string, log *zap.SugaredLogger) error {
	var docs []*network.Document
	for _, path := range files {
		doc, err := network.LoadDocument(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	merged := network.Merge(docs)
	if err := merged.Save(output); err != nil {
		return err
	}
	log.Infof("saved: %s", output)
	return nil
}
