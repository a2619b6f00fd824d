// The main package for the abusesync executable.
package main

import (
	"github.com/scamtrace/chainabuse-sync/cmd"
)

func main() {
	cmd.Execute()
}
