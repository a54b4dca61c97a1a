package main

import "github.com/arbscan/spread-scanner/cmd"

func main() {
	cmd.Execute()
}
