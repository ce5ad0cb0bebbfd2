package main

import "nofomo/internal/cli"

func main() {
	cli.Execute()
}
