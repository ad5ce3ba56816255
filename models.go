package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SystemOrganizationID is the sentinel id assigned to privileged accounts
// that predate any tenant.
const SystemOrganizationID = "system"

// Organization is the multi-tenant grouping an account belongs to. Either a
// real tenant row, the sentinel system organization, or absent.
type Organization struct {
	bun.BaseModel    `bun:"table:organizations,alias:org" json:"-"`
	ID               string     `bun:"id,pk" json:"id"`
	Name             string     `bun:"name,notnull" json:"name"`
	SubscriptionPlan string     `bun:"subscription_plan" json:"subscription_plan,omitempty"`
	IsActive         bool       `bun:"is_active" json:"is_active"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt        *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// IsSystem reports whether this is the sentinel organization.
func (o *Organization) IsSystem() bool {
	return o != nil && o.ID == SystemOrganizationID
}

// SystemOrganization synthesizes the sentinel organization assigned to
// privileged operators.
func SystemOrganization() *Organization {
	return &Organization{
		ID:       SystemOrganizationID,
		Name:     "System Administration",
		IsActive: true,
	}
}

// Account is the account model backing the reference identity provider and
// tenant store.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string         `bun:"phone,nullzero" json:"phone,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"password_hash,omitempty"`
	OrganizationID *string        `bun:"organization_id" json:"organization_id,omitempty"`
	Organization   *Organization  `bun:"rel:belongs-to,join:organization_id=id" json:"organization,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Identity derives the provider-facing principal from an account row.
func (a *Account) Identity(accessToken string) *Identity {
	return &Identity{
		ID:          a.ID.String(),
		Email:       a.Email,
		AccessToken: accessToken,
	}
}
