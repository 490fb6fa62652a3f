package main

import "os"

func main() {
	os.Exit(1) // want "os.Exit must not be called from main.main"
}

func shutdown() {
	os.Exit(2)
}
