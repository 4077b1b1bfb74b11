package main

import "github.com/railguard-io/railguard/cmd/railguard/cmd"

func main() {
	cmd.Execute()
}
