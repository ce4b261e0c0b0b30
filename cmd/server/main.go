package main

import "github.com/Togather-Foundation/historia/cmd/server/cmd"

func main() {
	cmd.Execute()
}
