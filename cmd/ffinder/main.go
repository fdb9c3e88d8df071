package main

import (
	"os"

	"github.com/fortiscope/fortiscope/pkg/findercli"
	"github.com/fortiscope/fortiscope/pkg/oslink"
)

func main() {
	os.Exit(findercli.Main(oslink.Get()))
}
