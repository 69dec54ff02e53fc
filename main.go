package main

import "github.com/nextlevelbuilder/aivoice/cmd"

func main() {
	cmd.Execute()
}
