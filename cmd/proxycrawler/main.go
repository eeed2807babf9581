package main

import (
	"proxycrawler/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("proxycrawler terminated", "error", err)
	}
}
