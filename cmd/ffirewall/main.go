package main

import (
	"os"

	"github.com/fortiscope/fortiscope/pkg/firewallcli"
	"github.com/fortiscope/fortiscope/pkg/oslink"
)

func main() {
	os.Exit(firewallcli.Main(oslink.Get()))
}
