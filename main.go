package main

import "github.com/audiolibrelab/micmagic/cmd"

func main() {
	cmd.Execute()
}
