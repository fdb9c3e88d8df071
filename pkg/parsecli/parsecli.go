// Package parsecli implements the fparse command. It parses FortiOS
// "show full-configuration" dumps and saves the configuration tree
// plus selected sections as JSON files below an output directory.
package parsecli

import (
	"fmt"
	"strings"

	"github.com/fortiscope/fortiscope/pkg/conf"
	"github.com/fortiscope/fortiscope/pkg/diag"
	"github.com/fortiscope/fortiscope/pkg/filetree"
	"github.com/fortiscope/fortiscope/pkg/fortios"
	"github.com/fortiscope/fortiscope/pkg/oslink"
	"github.com/fortiscope/fortiscope/pkg/parser"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

func Main(d oslink.Data) int {
	fs := pflag.NewFlagSet(d.Args[0], pflag.ContinueOnError)

	// Setup custom usage function.
	fs.Usage = func() {
		fmt.Fprintf(d.Stderr,
			"Usage: %s [options] FILE|DIR ...\n%s", d.Args[0], fs.FlagUsages())
	}

	// Command line flags
	cfg := conf.Defaults(fs)
	outdir := fs.StringP("outdir", "O", "out",
		"Directory to save parsed results under")
	sections := fs.StringArrayP("section", "s", nil,
		"Config section to extract, may be repeated")
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
	if len(args) == 0 {
		fs.Usage()
		return 1
	}
	if len(*sections) == 0 {
		*sections = parser.DefaultSections
	}

	log := diag.New(d.Stderr, cfg.Quiet)
	process := func(input *filetree.Context) error {
		cnf, err := fortios.Parse(strings.NewReader(input.Data))
		if err != nil {
			return errors.Wrapf(err, "parsing %s", input.Path)
		}
		dir, err := parser.DumpSections(cnf, input.Path, *outdir, *sections)
		if err != nil {
			return err
		}
		log.Infof("saved: %s", dir)
		return nil
	}
	for _, path := range args {
		if err := filetree.Walk(path, process); err != nil {
			fmt.Fprintf(d.Stderr, "Error: %s\n", err)
			return 1
		}
	}
	return 0
}
