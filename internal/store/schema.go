// ABOUTME: Table definitions for the privileged and tenant store schemas
// ABOUTME: Shared core tables plus per-instance tables, applied by the schema ensurer

package store

import "github.com/2389/shopdb/internal/engine"

func col(name, typ string) engine.ColumnDef {
	return engine.ColumnDef{Name: name, Type: typ, NotNull: true}
}

func colDefault(name, typ, def string) engine.ColumnDef {
	return engine.ColumnDef{Name: name, Type: typ, NotNull: true, Default: def}
}

func colNull(name, typ string) engine.ColumnDef {
	return engine.ColumnDef{Name: name, Type: typ}
}

func index(table string, unique bool, columns ...string) engine.IndexDef {
	name := "idx_" + table
	for _, c := range columns {
		name += "_" + firstWord(c)
	}
	return engine.IndexDef{Name: name, Columns: columns, Unique: unique}
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}

var usersTable = engine.TableDef{
	Name: "users",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		colDefault("name", "TEXT", "''"),
		col("email", "TEXT"),
		colDefault("password_hash", "TEXT", "''"),
		colDefault("role", "TEXT", "'customer'"),
		colDefault("phone", "TEXT", "''"),
		colDefault("joined_at", "TEXT", "''"),
		colNull("last_login_at", "TEXT"),
	},
	PrimaryKey: []string{"id"},
	Indexes:    []engine.IndexDef{index("users", true, "email COLLATE NOCASE")},
}

var sessionsTable = engine.TableDef{
	Name: "sessions",
	Columns: []engine.ColumnDef{
		col("slot", "TEXT"),
		col("user_id", "TEXT"),
		col("started_at", "TEXT"),
	},
	PrimaryKey: []string{"slot"},
}

var productsTable = engine.TableDef{
	Name: "products",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		colDefault("name_en", "TEXT", "''"),
		colDefault("name_ar", "TEXT", "''"),
		colDefault("description_en", "TEXT", "''"),
		colDefault("description_ar", "TEXT", "''"),
		colDefault("price", "REAL", "0"),
		colDefault("category", "TEXT", "'wellness'"),
		colDefault("image", "TEXT", "''"),
		colDefault("benefits", "TEXT", "'[]'"),
		colDefault("created_at", "TEXT", "''"),
		colDefault("updated_at", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes:    []engine.IndexDef{index("products", false, "category")},
}

var ordersTable = engine.TableDef{
	Name: "orders",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		colDefault("user_id", "TEXT", "''"),
		colDefault("email", "TEXT", "''"),
		colDefault("subtotal", "REAL", "0"),
		colDefault("surcharge", "REAL", "0"),
		colDefault("total", "REAL", "0"),
		colDefault("status", "TEXT", "'pending'"),
		colDefault("shipping_address", "TEXT", "'{}'"),
		colDefault("payment_method", "TEXT", "''"),
		colDefault("payment_ref", "TEXT", "''"),
		colDefault("carrier_ref", "TEXT", "''"),
		colDefault("created_at", "TEXT", "''"),
		colDefault("updated_at", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes: []engine.IndexDef{
		index("orders", false, "user_id"),
		index("orders", false, "email COLLATE NOCASE"),
	},
}

var orderItemsTable = engine.TableDef{
	Name: "order_items",
	Columns: []engine.ColumnDef{
		col("order_id", "TEXT"),
		col("line", "INTEGER"),
		colDefault("product_id", "TEXT", "''"),
		colDefault("name_en", "TEXT", "''"),
		colDefault("name_ar", "TEXT", "''"),
		colDefault("unit_price", "REAL", "0"),
		colDefault("image", "TEXT", "''"),
		colDefault("quantity", "INTEGER", "1"),
	},
	PrimaryKey: []string{"order_id", "line"},
}

var orderTrackingTable = engine.TableDef{
	Name: "order_tracking",
	Columns: []engine.ColumnDef{
		col("order_id", "TEXT"),
		col("seq", "INTEGER"),
		col("status", "TEXT"),
		col("at", "TEXT"),
		colDefault("location", "TEXT", "''"),
		colDefault("note", "TEXT", "''"),
	},
	PrimaryKey: []string{"order_id", "seq"},
}

var addressesTable = engine.TableDef{
	Name: "addresses",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		col("user_id", "TEXT"),
		colDefault("label", "TEXT", "''"),
		colDefault("recipient", "TEXT", "''"),
		colDefault("phone", "TEXT", "''"),
		colDefault("line1", "TEXT", "''"),
		colDefault("line2", "TEXT", "''"),
		colDefault("city", "TEXT", "''"),
		colDefault("region", "TEXT", "''"),
		colDefault("postal_code", "TEXT", "''"),
		colDefault("country", "TEXT", "''"),
		colDefault("is_default", "INTEGER", "0"),
		colDefault("created_at", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes:    []engine.IndexDef{index("addresses", false, "user_id")},
}

var savedCardsTable = engine.TableDef{
	Name: "saved_cards",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		col("user_id", "TEXT"),
		colDefault("brand", "TEXT", "''"),
		colDefault("last4", "TEXT", "''"),
		colDefault("holder", "TEXT", "''"),
		colDefault("exp_month", "INTEGER", "0"),
		colDefault("exp_year", "INTEGER", "0"),
		colDefault("created_at", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes:    []engine.IndexDef{index("saved_cards", false, "user_id")},
}

var favoritesTable = engine.TableDef{
	Name: "favorites",
	Columns: []engine.ColumnDef{
		col("user_id", "TEXT"),
		col("product_id", "TEXT"),
		colDefault("created_at", "TEXT", "''"),
	},
	PrimaryKey: []string{"user_id", "product_id"},
}

var savedCartsTable = engine.TableDef{
	Name: "saved_carts",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		col("user_id", "TEXT"),
		colDefault("name", "TEXT", "''"),
		colDefault("items", "TEXT", "'[]'"),
		colDefault("created_at", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes:    []engine.IndexDef{index("saved_carts", false, "user_id")},
}

var bulkRequestsTable = engine.TableDef{
	Name: "bulk_requests",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		colDefault("user_id", "TEXT", "''"),
		colDefault("company", "TEXT", "''"),
		colDefault("contact_name", "TEXT", "''"),
		colDefault("email", "TEXT", "''"),
		colDefault("phone", "TEXT", "''"),
		colDefault("product_id", "TEXT", "''"),
		colDefault("quantity", "INTEGER", "0"),
		colDefault("notes", "TEXT", "''"),
		colDefault("status", "TEXT", "'new'"),
		colDefault("created_at", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes:    []engine.IndexDef{index("bulk_requests", false, "user_id")},
}

var loginEventsTable = engine.TableDef{
	Name: "login_events",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		colDefault("user_id", "TEXT", "''"),
		colDefault("email", "TEXT", "''"),
		colDefault("success", "INTEGER", "0"),
		col("created_at", "TEXT"),
		colDefault("notes", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes: []engine.IndexDef{
		index("login_events", false, "user_id"),
		index("login_events", false, "created_at"),
	},
}

var activityEventsTable = engine.TableDef{
	Name: "activity_events",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		colDefault("user_id", "TEXT", "''"),
		col("action", "TEXT"),
		colDefault("target_type", "TEXT", "''"),
		colDefault("target_id", "TEXT", "''"),
		colNull("detail_json", "TEXT"),
		col("created_at", "TEXT"),
		colDefault("notes", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes: []engine.IndexDef{
		index("activity_events", false, "user_id"),
		index("activity_events", false, "created_at"),
	},
}

var transactionEventsTable = engine.TableDef{
	Name: "transaction_events",
	Columns: []engine.ColumnDef{
		col("id", "TEXT"),
		colDefault("user_id", "TEXT", "''"),
		colDefault("order_id", "TEXT", "''"),
		colDefault("amount", "REAL", "0"),
		colDefault("payment_method", "TEXT", "''"),
		colDefault("payment_ref", "TEXT", "''"),
		colDefault("status", "TEXT", "''"),
		col("created_at", "TEXT"),
		colDefault("notes", "TEXT", "''"),
	},
	PrimaryKey: []string{"id"},
	Indexes: []engine.IndexDef{
		index("transaction_events", false, "user_id"),
		index("transaction_events", false, "created_at"),
	},
}

// PrivilegedSchema is the administrative store: admin accounts, the
// product catalog, and orders under fulfilment.
func PrivilegedSchema() engine.SchemaDescriptor {
	return engine.SchemaDescriptor{Tables: []engine.TableDef{
		usersTable,
		sessionsTable,
		productsTable,
		ordersTable,
		orderItemsTable,
		orderTrackingTable,
		loginEventsTable,
		activityEventsTable,
		transactionEventsTable,
	}}
}

// TenantSchema is the customer-facing store.
func TenantSchema() engine.SchemaDescriptor {
	return engine.SchemaDescriptor{Tables: []engine.TableDef{
		usersTable,
		sessionsTable,
		ordersTable,
		orderItemsTable,
		orderTrackingTable,
		addressesTable,
		savedCardsTable,
		favoritesTable,
		savedCartsTable,
		bulkRequestsTable,
		loginEventsTable,
		activityEventsTable,
		transactionEventsTable,
	}}
}
