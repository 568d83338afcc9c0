package main

import "github.com/danpilch/flamegraph/pkg/cmd"

func main() {
	cmd.Execute()
}
