package main

import "github.com/oshokin/formulary/cmd/formulary/cmd"

func main() {
	cmd.Execute()
}
