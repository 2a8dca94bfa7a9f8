// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for querioctl.
//
// Usage:
//
//	go run . [flags]
//	./querioctl [flags]
//
// This launches the querioctl CLI. See --help for options.
package main

import (
	"log"
	"os"

	"github.com/querio/querioctl/ui/cli"
)

// main is the entrypoint for the querioctl CLI.
func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("querioctl error: %v", err)
		os.Exit(1)
	}
}
