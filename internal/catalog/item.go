package catalog

import (
	"time"

	"github.com/zombor/arcade-scan/internal/scanning"
)

// Item is a catalog entry a barcode can resolve to
type Item struct {
	ID        string            `json:"id"`
	Barcode   string            `json:"barcode"`
	Name      string            `json:"name"`
	Category  scanning.Category `json:"category"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
