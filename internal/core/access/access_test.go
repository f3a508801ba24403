package access

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		role     Role
		action   Action
		resource Resource
		want     bool
	}{
		{Cashier, Create, Check, true},
		{Cashier, Read, Check, true},
		{Cashier, Delete, Check, false},
		{Cashier, Update, StoreProduct, false},
		{Cashier, Update, CustomerCard, true},
		{Cashier, Delete, CustomerCard, false},
		{Cashier, Read, Employee, false},
		{Manager, Create, Check, false},
		{Manager, Read, Check, true},
		{Manager, Delete, Check, true},
		{Manager, Update, StoreProduct, true},
		{Manager, Delete, Employee, true},
		{Role("guest"), Read, Product, false},
	}

	for _, tt := range tests {
		if got := Can(tt.role, tt.action, tt.resource); got != tt.want {
			t.Errorf("Can(%s, %s, %s) = %v, want %v", tt.role, tt.action, tt.resource, got, tt.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("cashier"); err != nil || r != Cashier {
		t.Errorf("expected cashier, got %q, %v", r, err)
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Error("expected error for unknown role")
	}
}
