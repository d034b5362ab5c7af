package cmd

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
)

func printBanner() {
	figure.NewFigure("goGate", "cybermedium", true).Print()
	fmt.Printf("\n  Authentication gateway - Version %s\n\n", Version)
}
