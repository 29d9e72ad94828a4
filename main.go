package main

import "github.com/shipouthq/shipout/cmd/shipout"

func main() {
	shipout.Execute()
}
