package main

import "github.com/oshokin/os-updater/cmd/os-updater/cmd"

func main() {
	cmd.Execute()
}
