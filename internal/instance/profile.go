// ABOUTME: Instance identities and the profiles describing each store instance
// ABOUTME: Storage key, export filename, schema, and seed data per identity

package instance

import (
	"fmt"

	"github.com/2389/shopdb/internal/engine"
	"github.com/2389/shopdb/internal/store"
)

// Identity names one store instance.
type Identity string

const (
	Privileged Identity = "privileged"
	Tenant     Identity = "tenant"
)

// Identities lists every instance identity.
var Identities = []Identity{Privileged, Tenant}

// ParseIdentity converts a name to an Identity.
func ParseIdentity(s string) (Identity, error) {
	switch Identity(s) {
	case Privileged, Tenant:
		return Identity(s), nil
	default:
		return "", fmt.Errorf("unknown instance %q (want privileged or tenant)", s)
	}
}

// Bootstrap holds the credentials of the seeded admin account.
type Bootstrap struct {
	AdminEmail    string
	AdminPassword string
	BcryptCost    int // 0 means bcrypt.DefaultCost
}

// Profile describes one store instance.
type Profile struct {
	Identity       Identity
	StorageKey     string
	ExportFilename string
	Schema         engine.SchemaDescriptor
	Seeder         engine.Seeder // nil for no seed data
}

// PrivilegedProfile is the administrative store: one bootstrap admin and a
// starter catalog on first start.
func PrivilegedProfile(b Bootstrap) Profile {
	return Profile{
		Identity:       Privileged,
		StorageKey:     "shopdb_privileged",
		ExportFilename: "shopdb-privileged.db",
		Schema:         store.PrivilegedSchema(),
		Seeder: &store.PrivilegedSeeder{
			Email:    b.AdminEmail,
			Password: b.AdminPassword,
			Cost:     b.BcryptCost,
		},
	}
}

// TenantProfile is the customer-facing store. It has no seed data.
func TenantProfile() Profile {
	return Profile{
		Identity:       Tenant,
		StorageKey:     "shopdb_tenant",
		ExportFilename: "shopdb-tenant.db",
		Schema:         store.TenantSchema(),
	}
}

// WithStorageKey returns a copy of p stored under key. An empty key keeps
// the default.
func (p Profile) WithStorageKey(key string) Profile {
	if key != "" {
		p.StorageKey = key
	}
	return p
}
