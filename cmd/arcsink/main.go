package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Version is set at build time
var Version = "dev"

func main() {
	// .env is optional; deployments set the environment directly
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
