package main

import (
	"github.com/gridrank/gridrank/cmd"
	"github.com/gridrank/gridrank/lib/config"
)

func main() {
	config.LoadConfig()
	cmd.Execute()
}
