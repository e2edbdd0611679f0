package main

import "github.com/li-blockchain/rewards-collector/cmd"

func main() {
	cmd.Execute()
}
