package main

import "github.com/aweris/unipkg/cmd/unipkg/cmd"

func main() {
	cmd.Execute()
}
