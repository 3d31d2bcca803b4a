package main

import "github.com/fakeyudi/activitywatch-ls/cmd"

func main() {
	cmd.Execute()
}
