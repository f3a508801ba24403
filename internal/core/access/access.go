// Package access holds the static role to permission table.
package access

import "fmt"

type Role string

const (
	Manager Role = "manager"
	Cashier Role = "cashier"
)

type Resource string

const (
	Employee     Resource = "employee"
	Category     Resource = "category"
	Product      Resource = "product"
	StoreProduct Resource = "store_product"
	CustomerCard Resource = "customer_card"
	Check        Resource = "check"
	Sale         Resource = "sale"
)

type Action string

const (
	Create Action = "create"
	Read   Action = "read"
	Update Action = "update"
	Delete Action = "delete"
)

type actionSet map[Action]struct{}

func actions(list ...Action) actionSet {
	s := make(actionSet, len(list))
	for _, a := range list {
		s[a] = struct{}{}
	}
	return s
}

var crud = []Action{Create, Read, Update, Delete}

var permissions = map[Role]map[Resource]actionSet{
	Manager: {
		Employee:     actions(crud...),
		Category:     actions(crud...),
		Product:      actions(crud...),
		StoreProduct: actions(crud...),
		CustomerCard: actions(crud...),
		Check:        actions(Read, Delete),
		Sale:         actions(Read),
	},
	Cashier: {
		CustomerCard: actions(Create, Read, Update),
		Check:        actions(Create, Read),
		Sale:         actions(Create, Read),
		Product:      actions(Read),
		StoreProduct: actions(Read),
		Category:     actions(Read),
	},
}

func Can(role Role, action Action, resource Resource) bool {
	_, ok := permissions[role][resource][action]
	return ok
}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case Manager, Cashier:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
