package main

import "github.com/MeKo-Tech/ocrbench/cmd/ocrbench/cmd"

func main() {
	cmd.Execute()
}
