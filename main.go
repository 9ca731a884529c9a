package main

import "github.com/lepinkainen/qidianmeta/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
