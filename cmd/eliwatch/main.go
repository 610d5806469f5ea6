package main

import (
	"log"

	"github.com/MrSnakeDoc/eliwatch/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ eliwatch failed: %v", err)
	}
}
