package main

import "github.com/ValentinKolb/kvgate/cmd"

func main() {
	cmd.Execute()
}
