package main

import "github.com/bryanchriswhite/simplerecord/cmd/simplerecord/commands"

func main() {
	commands.Execute()
}
