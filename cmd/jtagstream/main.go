package main

import "github.com/OpenTraceLab/jtagstream/cmd/jtagstream/cmd"

func main() {
	cmd.Execute()
}
