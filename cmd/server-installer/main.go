package main

import "github.com/hendriksen-mark/server-installer/cmd/server-installer/cmd"

func main() {
	cmd.Execute()
}
