package main

import "github.com/ppiankov/governor/internal/cli"

func main() {
	cli.Execute()
}
