//go:build ignore

package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

type coupon struct {
	Code               string     `json:"code"`
	Type               string     `json:"type"`
	Value              int64      `json:"value"`
	MinOrder           int64      `json:"min_order,omitempty"`
	MaxUses            int        `json:"max_uses,omitempty"`
	MaxUsesPerCustomer int        `json:"max_uses_per_customer,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	Active             bool       `json:"active"`
}

// Writes sample coupon catalogues for local development, one JSON coupon per line.
// Run with: go run scripts/generate_sample_coupons.go
// VERANO10 is redefined in the second file; the importer keeps the later definition.
func main() {
	dataDir := "data/coupons"

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	expired := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	nextYear := time.Now().AddDate(1, 0, 0).UTC().Truncate(24 * time.Hour)

	catalogues := map[string][]coupon{
		"catalogue1.jsonl.gz": {
			{Code: "VERANO10", Type: "percentage", Value: 10, Active: true},
			{Code: "BIENVENIDA5", Type: "fixed", Value: 500, MinOrder: 2500, MaxUsesPerCustomer: 1, Active: true},
			{Code: "ENERO2025", Type: "percentage", Value: 15, ExpiresAt: &expired, Active: true},
		},
		"catalogue2.jsonl.gz": {
			{Code: "VERANO10", Type: "percentage", Value: 10, MinOrder: 3000, ExpiresAt: &nextYear, Active: true},
			{Code: "FLASH20", Type: "percentage", Value: 20, MaxUses: 50, Active: true},
			{Code: "RETIRADO", Type: "fixed", Value: 1000, Active: false},
		},
	}

	for filename, coupons := range catalogues {
		filePath := filepath.Join(dataDir, filename)

		if err := createCatalogueFile(filePath, coupons); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d coupons\n", filePath, len(coupons))
	}

	fmt.Println("\nSample coupon catalogues created successfully!")
	fmt.Println("Import them with: go run ./cmd/import-coupons data/coupons/catalogue1.jsonl.gz data/coupons/catalogue2.jsonl.gz")
}

func createCatalogueFile(filePath string, coupons []coupon) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	enc := json.NewEncoder(gzipWriter)
	for _, c := range coupons {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to write coupon %s: %w", c.Code, err)
		}
	}

	return nil
}
