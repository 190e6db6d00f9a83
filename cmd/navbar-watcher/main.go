package main

import "github.com/bryanchriswhite/navbar-watcher/cmd/navbar-watcher/commands"

func main() {
	commands.Execute()
}
