package main

import (
	"github.com/LENAX/toolflow/pkg/cli/cmd"
)

func main() {
	cmd.Execute()
}
