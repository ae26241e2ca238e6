package main

import "github.com/jonandersen/rob/cmd"

func main() {
	cmd.Execute()
}
