package main

import (
	"fmt"
	"os"

	"github.com/fleetgrid/webhooks/events"
)

/* validate-catalog - Standalone CLI tool to validate a catalog file
 * Usage: go run cmd/validate-catalog/main.go [catalog.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	catalogFile := "catalog.yaml"
	if len(os.Args) > 1 {
		catalogFile = os.Args[1]
	}

	fmt.Printf("Validating catalog file: %s\n", catalogFile)

	catalog := events.NewCatalog()
	if err := catalog.LoadFile(catalogFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	types := catalog.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d event type(s):\n", len(types))

	for i, t := range types {
		description, _ := catalog.Description(t)
		fmt.Printf("\n%d. %s\n", i+1, t)
		if description != "" {
			fmt.Printf("   Description: %s\n", description)
		}
	}

	fmt.Printf("\n✓ Catalog is valid!\n")
	os.Exit(0)
}
