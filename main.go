package main

import "github.com/peoplehub/integration-gateway/cmd"

func main() {
	cmd.Execute()
}
