// cmd/seedcatalog loads catalog items from a CSV file.
// Usage: go run ./cmd/seedcatalog -file items.csv
//
// Columns: id,name,version,msrp,min_price. An empty id lets the database
// assign one; rows with an existing id are updated in place.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"fulfillment/internal/config"
	"fulfillment/internal/infra"
	"fulfillment/internal/model"
	"fulfillment/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func main() {
	file := flag.String("file", "items.csv", "CSV file with id,name,version,msrp,min_price")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("open csv")
	}
	defer f.Close()

	items, err := parseItems(f)
	if err != nil {
		log.Fatal().Err(err).Msg("parse csv")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	if err := repository.NewItemRepository(db).Upsert(context.Background(), items); err != nil {
		log.Fatal().Err(err).Msg("upsert items")
	}
	fmt.Printf("seeded %d item(s) from %s\n", len(items), *file)
}

// parseItems reads the CSV, skipping a header row whose first cell is "id".
func parseItems(r io.Reader) ([]model.Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true

	var items []model.Item
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(rec[0], "id") {
			continue
		}

		var it model.Item
		if rec[0] != "" {
			if it.ID, err = uuid.Parse(rec[0]); err != nil {
				return nil, fmt.Errorf("line %d: id: %w", line, err)
			}
		} else {
			it.ID = uuid.New()
		}
		it.Name = strings.TrimSpace(rec[1])
		if it.Name == "" {
			return nil, fmt.Errorf("line %d: name is required", line)
		}
		it.Version = strings.TrimSpace(rec[2])
		if it.MSRP, err = decimal.NewFromString(rec[3]); err != nil {
			return nil, fmt.Errorf("line %d: msrp: %w", line, err)
		}
		if it.MinPrice, err = decimal.NewFromString(rec[4]); err != nil {
			return nil, fmt.Errorf("line %d: min_price: %w", line, err)
		}
		if it.MSRP.IsNegative() || it.MinPrice.IsNegative() {
			return nil, fmt.Errorf("line %d: prices must not be negative", line)
		}
		items = append(items, it)
	}
	return items, nil
}
