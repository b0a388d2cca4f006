package main

import "github.com/ValentinKolb/graphpack/cmd"

func main() {
	cmd.Execute()
}
