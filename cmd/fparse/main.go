package main

import (
	"os"

	"github.com/fortiscope/fortiscope/pkg/oslink"
	"github.com/fortiscope/fortiscope/pkg/parsecli"
)

func main() {
	os.Exit(parsecli.Main(oslink.Get()))
}
