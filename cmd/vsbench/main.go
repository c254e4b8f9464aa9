package main

import (
	"github.com/dshills/vsbench/cmd/vsbench/cmd"
)

func main() {
	cmd.Execute()
}
