package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/sadbox/boltbot/pkg/bot"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded, using the environment: %v", err)
	}

	token := os.Getenv("BOLTBOT_TOKEN")
	if token == "" {
		log.Fatal("Missing bot token: BOLTBOT_TOKEN")
	}

	b, err := bot.New(token)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	if err := b.Run(); err != nil {
		log.Fatalf("Bot error: %v", err)
	}
}
