package store

import (
	"context"
	"database/sql"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
)

// ProductTotal is one row of the product summary.
type ProductTotal struct {
	Product string  `json:"product"`
	Total   float64 `json:"total"`
}

type product struct {
	name     string
	price    float64
	quantity int
}

var demoProducts = []product{
	{"A", 10.5, 100},
	{"B", 25.0, 50},
	{"C", 15.75, 75},
	{"D", 30.0, 25},
	{"E", 20.25, 60},
}

// ProductTotals loads the demo products into a throwaway in-memory database
// and returns price * quantity per product, ordered by product name.
func ProductTotals(ctx context.Context) ([]ProductTotal, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, apperrors.NewDatabaseError(OpOpen, "failed to open in-memory database", err)
	}
	defer db.Close()
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE products (product TEXT PRIMARY KEY, price REAL, quantity INTEGER)`); err != nil {
		return nil, apperrors.NewDatabaseError(OpCreateTable, "failed to create products table", err)
	}
	for _, p := range demoProducts {
		if _, err := db.ExecContext(ctx, `INSERT INTO products (product, price, quantity) VALUES (?, ?, ?)`,
			p.name, p.price, p.quantity); err != nil {
			return nil, apperrors.NewDatabaseError(OpInsert, "failed to insert product", err)
		}
	}

	rows, err := db.QueryContext(ctx, `SELECT product, price * quantity AS total FROM products ORDER BY product`)
	if err != nil {
		return nil, apperrors.NewDatabaseError(OpQuery, "failed to query products", err)
	}
	defer rows.Close()

	totals := make([]ProductTotal, 0, len(demoProducts))
	for rows.Next() {
		var t ProductTotal
		if err := rows.Scan(&t.Product, &t.Total); err != nil {
			return nil, apperrors.NewDatabaseError(OpScan, "failed to scan product total", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError(OpRows, "failed to read product totals", err)
	}
	return totals, nil
}
