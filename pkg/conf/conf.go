// Package conf holds the options shared by the command line tools.
// Options come from command line flags and may be overridden by a
// simple "key = value" config file; flags set on the command line win.
package conf

import (
	"os"
	"strings"

	"github.com/fortiscope/fortiscope/pkg/netutils"
	"github.com/octago/sflags"
	"github.com/octago/sflags/gen/gpflag"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
)

// Config holds the options every tool understands.
type Config struct {
	Quiet     bool   `flag:"quiet q" desc:"Don't print progress messages"`
	MaxPrefix int    `flag:"prefix p" desc:"Summarize host addresses up to this prefix length"`
	Vdom      string `flag:"vdom V" desc:"Restrict queries to one virtual domain"`
}

// Defaults registers the shared flags on fs and returns the config
// they are bound to.
func Defaults(fs *flag.FlagSet) *Config {
	cfg := &Config{
		MaxPrefix: netutils.MaxPrefix,
	}
	err := gpflag.ParseTo(cfg, fs, sflags.FlagDivider("_"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// FromFile reads "key = value;" pairs from path and applies them to
// flags not already set on the command line. The trailing ";" is
// optional, lines starting with "#" are ignored.
func FromFile(path string, fs *flag.FlagSet) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", path)
	}
	config := make(map[string]string)
	for _, line := range strings.Split(string(bytes), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' {
			continue
		}
		parts := strings.SplitN(trimmed, "=", 2)
		if len(parts) != 2 {
			return errors.Errorf("unexpected line in %s: %s", path, line)
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSuffix(strings.TrimSpace(parts[1]), ";")
		config[key] = val
	}

	isSet := make(map[*flag.Flag]bool)
	fs.Visit(func(f *flag.Flag) {
		isSet[f] = true
	})
	var applyErr error
	fs.VisitAll(func(f *flag.Flag) {
		val, found := config[f.Name]
		if !found {
			return
		}
		delete(config, f.Name)
		if isSet[f] {
			return
		}
		if err := f.Value.Set(val); err != nil && applyErr == nil {
			applyErr = errors.Errorf(
				"invalid value for %s in %s: %s", f.Name, path, val)
		}
	})
	if applyErr != nil {
		return applyErr
	}
	for name := range config {
		return errors.Errorf("invalid keyword in %s: %s", path, name)
	}
	return nil
}
