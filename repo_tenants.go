package session

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// isNotFound covers both the repository's typed absence error and the raw
// driver shape surfaced by direct bun selects.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

// Tenants is the reference backend for both the TenantStore queries and the
// provider's account lookups.
type Tenants interface {
	repository.Repository[*Account]
	TenantStore
	AccountFinder

	Install(ctx context.Context) error
}

type tenants struct {
	repository.Repository[*Account]
	db     *bun.DB
	logger Logger
}

var (
	_ Tenants                         = (*tenants)(nil)
	_ repository.Repository[*Account] = (*tenants)(nil)
)

// TenantsOption customizes repository construction.
type TenantsOption func(*tenants)

// WithTenantsLogger overrides the repository logger.
func WithTenantsLogger(logger Logger) TenantsOption {
	return func(t *tenants) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTenantsRepository(db *bun.DB, opts ...TenantsOption) Tenants {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	t := &tenants{
		Repository: repo,
		db:         db,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	return t
}

// Install creates the backing tables when missing.
func (t *tenants) Install(ctx context.Context) error {
	if _, err := t.db.NewCreateTable().
		Model((*Organization)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	_, err := t.db.NewCreateTable().
		Model((*Account)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// FetchUserWithOrganization is the joined form: the account row with the
// organization relation embedded in one query. A missing account reports no
// membership rather than a fault.
func (t *tenants) FetchUserWithOrganization(ctx context.Context, identityID string) (*Membership, error) {
	account := &Account{}
	err := t.db.NewSelect().
		Model(account).
		Relation("Organization").
		Where("?TableAlias.id = ?", identityID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if account.OrganizationID == nil || *account.OrganizationID == "" {
		return &Membership{}, nil
	}

	membership := &Membership{OrganizationID: *account.OrganizationID}
	if account.Organization != nil && account.Organization.IsActive {
		membership.Organization = account.Organization
	}
	return membership, nil
}

// FetchUserOrganizationID is the narrow first step of the two-step form.
func (t *tenants) FetchUserOrganizationID(ctx context.Context, identityID string) (string, error) {
	var orgID sql.NullString
	err := t.db.NewSelect().
		Model((*Account)(nil)).
		Column("organization_id").
		Where("?TableAlias.id = ?", identityID).
		Limit(1).
		Scan(ctx, &orgID)

	if err != nil {
		if isNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return orgID.String, nil
}

// FetchOrganizationByID resolves an organization row, filtered to active
// organizations. Missing or inactive rows report absence, not an error.
func (t *tenants) FetchOrganizationByID(ctx context.Context, organizationID string) (*Organization, error) {
	org := &Organization{}
	err := t.db.NewSelect().
		Model(org).
		Where("?TableAlias.id = ?", organizationID).
		Where("?TableAlias.is_active = ?", true).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

// GetAccountByIdentifier resolves an account by id, email, or E.164 phone,
// trying the most specific column shape first.
func (t *tenants) GetAccountByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	options := resolveAccountIdentifier(identifier)
	if len(options) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"identifier": identifier,
			})
	}

	for _, opt := range options {
		record := &Account{}
		err := t.db.NewSelect().
			Model(record).
			Where("?TableAlias."+opt.column+" = ?", opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

// CreateAccount inserts an account, filling a random id when the caller did
// not derive one.
func (t *tenants) CreateAccount(ctx context.Context, account *Account) (*Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return t.Repository.Create(ctx, account)
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	if normalized, ok := normalizePhone(trimmed); ok {
		options = append(options, identifierOption{
			column: "phone",
			value:  normalized,
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// normalizePhone canonicalizes an international phone identifier to E.164 so
// lookups match regardless of the spacing the caller typed. Only identifiers
// carrying a country code qualify; bare national numbers are ambiguous.
func normalizePhone(identifier string) (string, bool) {
	if !strings.HasPrefix(identifier, "+") {
		return "", false
	}
	num, err := phonenumbers.Parse(identifier, "")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
