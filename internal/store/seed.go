// ABOUTME: Default rows for a freshly created privileged store
// ABOUTME: One bootstrap admin account and a starter bilingual catalog

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap credentials used when the configuration supplies none.
const (
	DefaultAdminEmail    = "admin@shopdb.local"
	DefaultAdminPassword = "change-me-now"
)

// PrivilegedSeeder inserts the bootstrap admin when the store has no admin
// account, and the starter catalog when it has no products.
type PrivilegedSeeder struct {
	Email    string
	Password string
	Cost     int              // bcrypt cost, 0 means bcrypt.DefaultCost
	Clock    func() time.Time // nil means time.Now
}

// NeedsSeed reports whether the store lacks an admin account.
func (p *PrivilegedSeeder) NeedsSeed(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE role = ?`, string(RoleAdmin)).Scan(&n); err != nil {
		return false, fmt.Errorf("counting admins: %w", err)
	}
	return n == 0, nil
}

// Seed inserts the default rows in one transaction.
func (p *PrivilegedSeeder) Seed(ctx context.Context, db *sql.DB) error {
	email, password := p.Email, p.Password
	if email == "" {
		email = DefaultAdminEmail
	}
	if password == "" {
		password = DefaultAdminPassword
	}
	cost := p.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	now := time.Now
	if p.Clock != nil {
		now = p.Clock
	}
	at := formatTime(now())

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	adminID := RoleAdmin.Prefix() + uuid.New().String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, phone, joined_at)
		VALUES (?, ?, ?, ?, ?, '', ?)`,
		adminID, "Administrator", NormalizeEmail(email), string(hash), string(RoleAdmin), at); err != nil {
		return fmt.Errorf("inserting bootstrap admin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO activity_events (id, user_id, action, target_type, target_id, created_at, notes)
		VALUES (?, 'system', ?, 'user', ?, ?, 'bootstrap admin')`,
		uuid.New().String(), ActionUserCreated, adminID, at); err != nil {
		return fmt.Errorf("recording bootstrap admin: %w", err)
	}

	var products int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM products`).Scan(&products); err != nil {
		return fmt.Errorf("counting products: %w", err)
	}
	if products == 0 {
		for _, sp := range starterCatalog {
			benefits, err := json.Marshal(sp.Benefits)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO products (`+productColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sp.ID, sp.NameEN, sp.NameAR, sp.DescriptionEN, sp.DescriptionAR, sp.Price,
				string(sp.Category), sp.Image, string(benefits), at, at); err != nil {
				return fmt.Errorf("inserting product %s: %w", sp.ID, err)
			}
		}
	}

	return tx.Commit()
}

var starterCatalog = []Product{
	{
		ID:            "prd_seed_01",
		NameEN:        "Daily Multivitamin",
		NameAR:        "فيتامينات متعددة يومية",
		DescriptionEN: "A complete daily blend of essential vitamins and minerals.",
		DescriptionAR: "مزيج يومي متكامل من الفيتامينات والمعادن الأساسية.",
		Price:         120,
		Category:      CategorySupplements,
		Image:         "/images/products/multivitamin.jpg",
		Benefits:      []string{"energy", "immunity"},
	},
	{
		ID:            "prd_seed_02",
		NameEN:        "Hydrating Face Serum",
		NameAR:        "سيروم مرطب للوجه",
		DescriptionEN: "Lightweight hyaluronic serum for all skin types.",
		DescriptionAR: "سيروم خفيف بحمض الهيالورونيك لجميع أنواع البشرة.",
		Price:         185,
		Category:      CategorySkincare,
		Image:         "/images/products/serum.jpg",
		Benefits:      []string{"hydration", "glow"},
	},
	{
		ID:            "prd_seed_03",
		NameEN:        "Argan Repair Shampoo",
		NameAR:        "شامبو الأرغان المرمم",
		DescriptionEN: "Sulfate-free shampoo with cold-pressed argan oil.",
		DescriptionAR: "شامبو خالٍ من الكبريتات بزيت الأرغان المعصور على البارد.",
		Price:         95,
		Category:      CategoryHaircare,
		Image:         "/images/products/shampoo.jpg",
		Benefits:      []string{"repair", "shine"},
	},
	{
		ID:            "prd_seed_04",
		NameEN:        "Sleep Support Tea",
		NameAR:        "شاي داعم للنوم",
		DescriptionEN: "Chamomile and lavender herbal infusion.",
		DescriptionAR: "منقوع عشبي من البابونج والخزامى.",
		Price:         60,
		Category:      CategoryWellness,
		Image:         "/images/products/sleep-tea.jpg",
		Benefits:      []string{"relaxation", "sleep"},
	},
	{
		ID:            "prd_seed_05",
		NameEN:        "Omega-3 Fish Oil",
		NameAR:        "زيت السمك أوميغا 3",
		DescriptionEN: "High-strength omega-3 softgels.",
		DescriptionAR: "كبسولات أوميغا 3 عالية التركيز.",
		Price:         140,
		Category:      CategorySupplements,
		Image:         "/images/products/omega3.jpg",
		Benefits:      []string{"heart", "focus"},
	},
	{
		ID:            "prd_seed_06",
		NameEN:        "Glow Routine Bundle",
		NameAR:        "مجموعة روتين النضارة",
		DescriptionEN: "Serum, cleanser, and moisturizer in one set.",
		DescriptionAR: "سيروم ومنظف ومرطب في مجموعة واحدة.",
		Price:         320,
		Category:      CategoryBundles,
		Image:         "/images/products/glow-bundle.jpg",
		Benefits:      []string{"routine", "value"},
	},
}
