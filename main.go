package main

import "github.com/DevExpGBB/azsvc/cmd"

func main() {
	cmd.Execute()
}
