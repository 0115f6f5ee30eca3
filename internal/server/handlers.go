package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/arcade-scan/internal/catalog"
	"github.com/zombor/arcade-scan/internal/scanning"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// handleSession returns the status of the current scan session
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	status, ok := s.status.Status()
	if !ok {
		corsError(w, "No scan session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// categoryParam reads and validates the {category} path value
func categoryParam(w http.ResponseWriter, r *http.Request) (scanning.Category, bool) {
	category := scanning.Category(r.PathValue("category"))
	if !category.Known() {
		corsError(w, "Unknown category", http.StatusBadRequest)
		return "", false
	}
	return category, true
}

// handleListItems returns every catalog item in a category
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}

	items, err := s.catalog.ListItems(category)
	if err != nil {
		slog.Error("Error listing catalog items", "category", category, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type addItemRequest struct {
	Barcode string `json:"barcode"`
	Name    string `json:"name"`
}

// handleAddItem registers a barcode in a category
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Barcode == "" {
		corsError(w, "Barcode is required", http.StatusBadRequest)
		return
	}

	item, err := s.catalog.AddItem(category, req.Barcode, req.Name)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownCategory) {
			corsError(w, "Unknown category", http.StatusBadRequest)
			return
		}
		slog.Error("Error adding catalog item", "category", category, "barcode", req.Barcode, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	slog.Info("Catalog item added", "category", category, "barcode", item.Barcode)
	writeJSON(w, http.StatusCreated, item)
}

// handleDeleteItem removes a barcode from a category
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(w, r)
	if !ok {
		return
	}

	barcode := r.PathValue("barcode")
	if err := s.catalog.DeleteItem(category, barcode); err != nil {
		slog.Error("Error deleting catalog item", "category", category, "barcode", barcode, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
