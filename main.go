package main

import "github.com/BioHazard786/Warpcall/cmd"

func main() {
	cmd.Execute()
}
