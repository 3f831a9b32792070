package realtime

// Role identifies the kind of actor behind a session.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
)

// IsStaff reports whether the role is authorized to manage orders and
// therefore subscribes to the global order stream.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleManager
}

// Session identifies the connected actor. It is created at connection time
// and immutable for the connection's lifetime. Table number and customer
// details live here rather than in any global store; the shell passes them
// in at construction.
type Session struct {
	Role        Role
	DisplayName string

	// OrderContext optionally anchors the session to an order number, used
	// when a customer opens support chat about a specific order.
	OrderContext string
}
