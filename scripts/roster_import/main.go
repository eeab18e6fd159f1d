package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/parish-tools/rosterbot/internal/repository"
)

// Imports a CSV file into a sheet table. The first CSV row becomes the
// header row; existing rows in the target sheet are kept, imported rows
// are appended after them.
func main() {
	var (
		dsn      string
		sheet    string
		csvPath  string
		truncate bool
		timeout  time.Duration
	)

	flag.StringVar(&dsn, "dsn", "host=localhost port=5432 user=postgres password=postgres dbname=rosterbot sslmode=disable", "Postgres DSN")
	flag.StringVar(&sheet, "sheet", "MainSheet", "Target sheet name")
	flag.StringVar(&csvPath, "csv", "", "Path to the CSV file to import")
	flag.BoolVar(&truncate, "truncate", false, "Delete existing sheet rows before importing")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall import timeout")
	flag.Parse()

	if csvPath == "" {
		log.Fatal("missing required -csv flag")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	records, err := readCSV(csvPath)
	if err != nil {
		log.Fatalf("failed to read csv: %v", err)
	}
	if len(records) == 0 {
		log.Fatal("csv file is empty")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close() //nolint:errcheck

	store := repository.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	if truncate {
		if _, err := db.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = $1`, sheet); err != nil {
			log.Fatalf("failed to truncate sheet: %v", err)
		}
	}

	existing, err := store.FetchAll(ctx, sheet)
	if err != nil {
		log.Fatalf("failed to read sheet: %v", err)
	}

	rows := records
	if len(existing) > 0 {
		// Sheet already has a header; skip the CSV one.
		rows = records[1:]
	}

	imported := 0
	for _, row := range rows {
		if _, err := store.AppendRow(ctx, sheet, row); err != nil {
			log.Fatalf("failed to append row %d: %v", imported+1, err)
		}
		imported++
	}

	fmt.Printf("Imported %d rows into %q (sheet now has %d rows including header)\n",
		imported, sheet, len(existing)+len(rows))
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}
