// model-extract copies the text decoder out of a sharded multimodal
// safetensors checkpoint into a standalone model directory.
package main

import (
	"fmt"
	"os"

	"github.com/docker/model-extract/cmd/model-extract/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
