// Idiomatic entrypoint for the cobra CLI that delegates to the root command
// in cmd/root.go.
package main

import (
	"github.com/inferno-serve/inferno/cmd"
)

func main() {
	cmd.Execute()
}
