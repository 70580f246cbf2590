package main

import "github.com/rmed/simpleice/internal/cli"

func main() {
	cli.Execute()
}
