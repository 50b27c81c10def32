package main

import "github.com/peershare/swapd/cmd/swapd/cmd"

func main() {
	cmd.Execute()
}
