package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/novabot/nova/internal/app"
)

func main() {
	// A .env next to the binary may carry NOVA_PRIVATE_KEY; it is optional.
	_ = godotenv.Load()
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
