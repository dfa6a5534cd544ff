package main

import "github.com/mikepea/placement/pkg/placement/cli"

func main() {
	cli.Execute()
}
