package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Seed: стартовый каталог и покупатели для локального запуска.
type Seed struct {
	Products []SeedProduct `yaml:"products"`
	Users    []SeedUser    `yaml:"users"`
}

type SeedProduct struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Image string `yaml:"image"`
	// Quantity не задан, товар без учёта остатков.
	Quantity                      *int64 `yaml:"quantity"`
	ContinueSellingWhenOutOfStock bool   `yaml:"continueSellingWhenOutOfStock"`
}

type SeedUser struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// LoadSeed читает YAML-файл с сидом.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed разбирает сид и проверяет карточки товаров.
func ParseSeed(raw []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	for i, p := range seed.Products {
		product, err := p.toProduct()
		if err != nil {
			return Seed{}, fmt.Errorf("products[%d]: %w", i, err)
		}
		if errs := product.Validate(); len(errs) > 0 {
			return Seed{}, fmt.Errorf("products[%d]: %w", i, errors.Join(errs...))
		}
	}
	for i, u := range seed.Users {
		if u.ID == "" {
			return Seed{}, fmt.Errorf("users[%d]: %w", i, domain.ErrUserRequired)
		}
	}
	return seed, nil
}

func (p SeedProduct) toProduct() (domain.Product, error) {
	price := decimal.Zero
	if p.Price != "" {
		parsed, err := decimal.NewFromString(p.Price)
		if err != nil {
			return domain.Product{}, fmt.Errorf("price %q: %w", p.Price, err)
		}
		price = parsed
	}

	product := domain.Product{
		ID:                            p.ID,
		Name:                          p.Name,
		Price:                         price,
		Image:                         p.Image,
		ContinueSellingWhenOutOfStock: p.ContinueSellingWhenOutOfStock,
	}
	if p.Quantity != nil {
		product.Quantity = *p.Quantity
		product.TrackQuantity = true
	}
	return product, nil
}

// ApplySeed добавляет отсутствующие товары и покупателей. Существующие записи не трогаются,
// поэтому повторный запуск не сбрасывает остатки.
func ApplySeed(ctx context.Context, seed Seed, products domain.ProductRepository, users domain.UserRepository, logger *log.Entry) error {
	var added, skipped int

	for _, p := range seed.Products {
		product, err := p.toProduct()
		if err != nil {
			return err
		}
		_, err = products.Get(ctx, product.ID)
		switch {
		case err == nil:
			skipped++
			continue
		case !errors.Is(err, domain.ErrProductNotFound):
			return fmt.Errorf("lookup product %s: %w", product.ID, err)
		}
		if err := products.Upsert(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
		added++
	}

	for _, u := range seed.Users {
		_, err := users.Get(ctx, u.ID)
		switch {
		case err == nil:
			skipped++
			continue
		case !errors.Is(err, domain.ErrUserNotFound):
			return fmt.Errorf("lookup user %s: %w", u.ID, err)
		}
		if err := users.Upsert(ctx, domain.UserAccount{ID: u.ID, Name: u.Name}); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		added++
	}

	logger.WithFields(log.Fields{"added": added, "skipped": skipped}).Info("seed applied")
	return nil
}
