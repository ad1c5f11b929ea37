//go:build !windows

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "wsfilter only targets windows hosts")
	os.Exit(1)
}
