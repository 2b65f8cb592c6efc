package main

import (
	"fmt"
	"os"

	"github.com/loopcollab/loop-saas/apps/cli-ops/root"
)

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
