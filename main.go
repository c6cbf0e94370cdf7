/*
	Copyright 2026 Markus Papenbrock
*/

package main

import "github.com/mpapenbr/racesim-client/cmd"

func main() {
	cmd.Execute()
}
