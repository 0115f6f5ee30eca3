package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/arcade-scan/internal/scanning"
)

// IDGenerator generates unique IDs for items
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service manages the catalog and resolves scanned barcodes against it
type Service struct {
	db          DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB) *Service {
	return &Service{
		db:          db,
		idGenerator: &uuidGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// AddItem registers a barcode. Adding an existing barcode renames it and keeps its ID.
func (s *Service) AddItem(category scanning.Category, barcode, name string) (*Item, error) {
	if !category.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, fmt.Errorf("barcode is required")
	}

	now := s.timeSource.Now()
	item, err := s.db.GetItem(category, barcode)
	switch {
	case errors.Is(err, ErrNotFound):
		item = &Item{
			ID:        s.idGenerator.Generate(),
			Barcode:   barcode,
			Category:  category,
			CreatedAt: now,
		}
	case err != nil:
		return nil, fmt.Errorf("getting item: %w", err)
	}
	item.Name = strings.TrimSpace(name)
	item.UpdatedAt = now

	if err := s.db.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}
	return item, nil
}

// Resolve succeeds when code is a registered item of category
func (s *Service) Resolve(ctx context.Context, category scanning.Category, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item, err := s.db.GetItem(category, code)
	if err != nil {
		return fmt.Errorf("resolving barcode: %w", err)
	}
	slog.Debug("Resolved barcode", "category", category, "barcode", item.Barcode, "name", item.Name)
	return nil
}

// GetItem retrieves an item by category and barcode
func (s *Service) GetItem(category scanning.Category, barcode string) (*Item, error) {
	item, err := s.db.GetItem(category, barcode)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns every item in a category
func (s *Service) ListItems(category scanning.Category) ([]*Item, error) {
	items, err := s.db.ListItems(category)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an item
func (s *Service) DeleteItem(category scanning.Category, barcode string) error {
	if err := s.db.DeleteItem(category, barcode); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// Seed is a parsed category:barcode:name seed
type Seed struct {
	Category scanning.Category
	Barcode  string
	Name     string
}

// ParseSeed parses "category:barcode[:name]"
func ParseSeed(s string) (Seed, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return Seed{}, fmt.Errorf("invalid catalog seed %q: want category:barcode[:name]", s)
	}
	category := scanning.Category(strings.ToLower(strings.TrimSpace(parts[0])))
	if !category.Known() {
		return Seed{}, fmt.Errorf("invalid catalog seed %q: %w: %q", s, ErrUnknownCategory, parts[0])
	}
	entry := Seed{Category: category, Barcode: strings.TrimSpace(parts[1])}
	if entry.Barcode == "" {
		return Seed{}, fmt.Errorf("invalid catalog seed %q: barcode is required", s)
	}
	if len(parts) == 3 {
		entry.Name = strings.TrimSpace(parts[2])
	}
	return entry, nil
}
