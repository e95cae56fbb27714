package main

import "github.com/stephnangue/doorman/cmd"

func main() {
	cmd.Execute()
}
