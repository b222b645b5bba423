package main

import "github.com/erlaaaand/dentizy/cli"

func main() {
	cli.Execute()
}
