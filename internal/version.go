package internal

import "fmt"

// Set at build time through -ldflags "-X".
var Version = ""
var Commit = ""

func PrintableVersion() string {
	if Version == "" {
		return "dev"
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
