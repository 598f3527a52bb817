package main

import "github.com/arloliu/go-scpi/cmd/scpibench/cmd"

func main() {
	cmd.Execute()
}
