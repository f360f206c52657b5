package main

import (
	"os"

	"github.com/joho/godotenv"

	"swood/cmd/swood/cmd"
	"swood/internal/utils"
)

func main() {
	// A .env file may hold SWOOD_OVERPASS_TOKEN; it is optional
	_ = godotenv.Load()

	code := cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, &cmd.Config{})
	utils.GetLogger().Close()
	os.Exit(code)
}
