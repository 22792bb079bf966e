package main

import "github.com/rustyeddy/livermore/cmd/livermore/cmd"

func main() {
	cmd.Execute()
}
