// Command seed_shards writes a few SQLite "shards" with overlapping orders
// tables so union and join merges can be tried locally:
//
//	go run ./scripts/seed_shards -dir /tmp/shards -shards 3
//	fanout connections add shard1 --kind sqlite --database /tmp/shards/shard1.db
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

func main() {
	var (
		dir    string
		shards int
		count  int
	)
	flag.StringVar(&dir, "dir", "shards", "Directory to write shard databases to")
	flag.IntVar(&shards, "shards", 3, "Number of shard databases")
	flag.IntVar(&count, "count", 25, "Number of orders per shard")
	flag.Parse()

	if err := os.MkdirAll(dir, 0755); err != nil {
		panic(fmt.Errorf("create %s: %w", dir, err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statuses := []string{"pending", "paid", "shipped", "cancelled"}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for s := 1; s <= shards; s++ {
		path := filepath.Join(dir, fmt.Sprintf("shard%d.db", s))
		if err := seed(ctx, path, s, count, statuses, rng); err != nil {
			panic(fmt.Errorf("seed %s: %w", path, err))
		}
		fmt.Printf("wrote %d orders to %s\n", count, path)
	}
}

func seed(ctx context.Context, path string, shard, count int, statuses []string, rng *rand.Rand) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	// Later shards carry an extra column so schema comparison has
	// something to report.
	ddl := "CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT, total REAL, created_at TEXT)"
	if shard > 1 {
		ddl = "CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT, total REAL, created_at TEXT, region TEXT)"
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := 0; i < count; i++ {
		// Ids overlap across shards so joins on id find matches.
		id := i*shard + 1
		status := statuses[rng.Intn(len(statuses))]
		total := float64(10+rng.Intn(4900)) / 100.0
		created := time.Now().Add(-time.Duration(rng.Intn(720)) * time.Hour).UTC().Format(time.RFC3339)

		if shard > 1 {
			_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO orders VALUES (?, ?, ?, ?, ?)", id, status, total, created, fmt.Sprintf("region-%d", shard))
		} else {
			_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO orders VALUES (?, ?, ?, ?)", id, status, total, created)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
