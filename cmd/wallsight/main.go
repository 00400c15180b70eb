package main

import "github.com/MeKo-Tech/wallsight/cmd/wallsight/cmd"

func main() {
	cmd.Execute()
}
