/*
Package main implements the b2 command-line tool for B2 Cloud Storage.

Exit codes:
  - 0: success
  - 1: the command failed in an expected way (bad arguments, service error,
    missing authorization, interrupt); the reason is on stderr
  - 2: unexpected fault; the error and its stack are on stderr
*/
package main

import (
	"fmt"
	"os"

	"github.com/ldamasio/b2-go/cmd"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

func main() {
	cmd.SetVersionInfo(Version, BuildTime)

	code, err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %+v\n", err)
	}
	os.Exit(code)
}
