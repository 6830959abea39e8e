// mergebot runs a per-target-branch pull-request merge queue against GitHub.
package main

import (
	"os"

	"github.com/wall-e-bot/mergebot/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
