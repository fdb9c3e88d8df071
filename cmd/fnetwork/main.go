package main

import (
	"os"

	"github.com/fortiscope/fortiscope/pkg/networkcli"
	"github.com/fortiscope/fortiscope/pkg/oslink"
)

func main() {
	os.Exit(networkcli.Main(oslink.Get()))
}
