package main

import "github.com/narrativeforge/loomwright/cmd"

func main() {
	cmd.Execute()
}
