// internal/service/product/domain/product_test.go
package domain

import (
	"errors"
	"testing"
)

func TestNewProductValidation(t *testing.T) {
	cases := []struct {
		name        string
		productName string
		description string
		price       float64
		stock       int
		categoryID  string
		wantErr     bool
	}{
		{"valid", "Laptop", "A fine laptop", 999.99, 10, "cat-1", false},
		{"name too short", "L", "desc", 1, 1, "cat-1", true},
		{"empty description", "Laptop", "", 1, 1, "cat-1", true},
		{"negative price", "Laptop", "desc", -1, 1, "cat-1", true},
		{"negative stock", "Laptop", "desc", 1, -1, "cat-1", true},
		{"empty category", "Laptop", "desc", 1, 1, "", true},
		{"zero stock allowed", "Laptop", "desc", 1, 0, "cat-1", false},
		{"zero price allowed", "Freebie", "desc", 0, 1, "cat-1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			product, err := NewProduct(tc.productName, tc.description, tc.price, tc.stock, tc.categoryID)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got product %+v", product)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if product.ID == "" {
				t.Error("expected a generated ID")
			}
		})
	}
}

func TestReduceStock(t *testing.T) {
	product := &Product{Name: "Widget", Stock: 5}

	if err := product.ReduceStock(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Stock != 2 {
		t.Fatalf("stock = %d, want 2", product.Stock)
	}

	err := product.ReduceStock(3)
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Requested != 3 || insufficient.Available != 2 {
		t.Errorf("error = %+v, want Requested=3 Available=2", insufficient)
	}
	if product.Stock != 2 {
		t.Errorf("failed reduction must not change stock, got %d", product.Stock)
	}
}

func TestReduceStockInvalidQuantity(t *testing.T) {
	product := &Product{Name: "Widget", Stock: 5}
	for _, quantity := range []int{0, -1} {
		err := product.ReduceStock(quantity)
		var invalid *InvalidQuantityError
		if !errors.As(err, &invalid) {
			t.Fatalf("quantity %d: expected InvalidQuantityError, got %v", quantity, err)
		}
	}
	if product.Stock != 5 {
		t.Errorf("stock = %d, want 5", product.Stock)
	}
}

func TestIncreaseStock(t *testing.T) {
	product := &Product{Stock: 2}
	product.IncreaseStock(3)
	if product.Stock != 5 {
		t.Errorf("stock = %d, want 5", product.Stock)
	}
}

func TestErrorMessages(t *testing.T) {
	notFound := &NotFoundError{ID: "p-1"}
	if got, want := notFound.Error(), "Product with ID 'p-1' not found"; got != want {
		t.Errorf("NotFoundError = %q, want %q", got, want)
	}

	insufficient := &InsufficientStockError{Requested: 3, Available: 1, ProductName: "Widget"}
	want := "Insufficient stock for product 'Widget'. Requested: 3, Available: 1"
	if got := insufficient.Error(); got != want {
		t.Errorf("InsufficientStockError = %q, want %q", got, want)
	}

	invalid := &InvalidQuantityError{Quantity: -2}
	if got, want := invalid.Error(), "Invalid quantity: -2. Quantity must be a positive number"; got != want {
		t.Errorf("InvalidQuantityError = %q, want %q", got, want)
	}
}

func TestIsAvailable(t *testing.T) {
	if (&Product{Stock: 0}).IsAvailable() {
		t.Error("zero stock must not be available")
	}
	if !(&Product{Stock: 1}).IsAvailable() {
		t.Error("positive stock must be available")
	}
}
