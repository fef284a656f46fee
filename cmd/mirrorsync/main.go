package main

import "github.com/dl-alexandre/mirrorsync/internal/cli"

func main() {
	cli.Execute()
}
