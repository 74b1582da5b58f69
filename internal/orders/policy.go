package orders

import "github.com/ariefcatur/go-orders-inventory/internal/auth"

// CanAccess: admin, atau pemilik order. Dipakai sama persis untuk baca dan semua transisi.
func CanAccess(o Order, p auth.Principal) bool {
	if !p.Authenticated() {
		return false
	}
	return p.Elevated() || p.UserID == o.UserID
}
