package main

import (
	"log"

	"github.com/vkarpenko/shrturl/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	application, err := app.New()
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Run()
}
