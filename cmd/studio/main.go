package main

import (
	"github.com/joho/godotenv"

	"foto-produk-maker/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
