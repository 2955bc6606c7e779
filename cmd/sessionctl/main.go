package main

import "github.com/jmcleod/sessionstore/cmd/sessionctl/cmd"

func main() {
	cmd.Execute()
}
