package main

import "github.com/lunemec/spicord/cmd"

func main() {
	cmd.Execute()
}
