package main

import "github.com/binref/symfind/cmd"

func main() {
	cmd.Execute()
}
