package main

import (
	"github.com/joho/godotenv"

	"curator/internal/cli"
)

func main() {
	// Optional .env for the gate API key; missing file is fine.
	_ = godotenv.Load()
	cli.Execute()
}
