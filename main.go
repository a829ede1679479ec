package main

import "github.com/ichie-benjamin/market-pulse/cmd"

func main() {
	cmd.Execute()
}
