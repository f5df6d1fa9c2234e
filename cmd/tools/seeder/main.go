package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pasar/internal/config"
	"github.com/noah-isme/backend-pasar/internal/obs"
)

type seedProduct struct {
	Slug        string
	Name        string
	Description string
	Price       int64
	Stock       int32
}

var products = []seedProduct{
	{Slug: "kopi-arabica-250g", Name: "Kopi Arabica 250g", Description: "Single origin arabica beans, medium roast.", Price: 120000, Stock: 80},
	{Slug: "kopi-robusta-250g", Name: "Kopi Robusta 250g", Description: "Strong robusta beans for espresso blends.", Price: 85000, Stock: 120},
	{Slug: "teh-melati-100g", Name: "Teh Melati 100g", Description: "Jasmine scented green tea.", Price: 45000, Stock: 200},
	{Slug: "gula-aren-500g", Name: "Gula Aren 500g", Description: "Organic palm sugar blocks.", Price: 38000, Stock: 150},
	{Slug: "v60-dripper", Name: "V60 Dripper", Description: "Ceramic pour-over dripper, size 02.", Price: 165000, Stock: 35},
	{Slug: "paper-filter-02", Name: "Paper Filter 02 (100pcs)", Description: "Bleached paper filters for size 02 drippers.", Price: 52000, Stock: 60},
}

func main() {
	logger := obs.NewLogger("console", "info")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (slug, name, description, price, stock)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (slug) DO UPDATE
			SET name = EXCLUDED.name,
			    description = EXCLUDED.description,
			    price = EXCLUDED.price,
			    stock = EXCLUDED.stock,
			    updated_at = now()`,
			p.Slug, p.Name, p.Description, p.Price, p.Stock)
		if err != nil {
			logger.Fatal().Err(err).Str("slug", p.Slug).Msg("seed product")
		}
	}
	logger.Info().Int("products", len(products)).Msg("seed complete")
}
