package main

import "github.com/aceteam-ai/ilocalserver/cmd"

func main() {
	cmd.Execute()
}
