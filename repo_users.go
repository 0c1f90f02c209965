package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// passwordChangeSkew is subtracted from the password-change stamp so a token
// minted in the same response never appears to predate the change when the
// store write lands a moment later.
const passwordChangeSkew = time.Second

var ChangeUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"password_changed_at" = ?,
	"reset_token_hash" = NULL,
	"reset_token_expires" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var SetResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"reset_token_hash" = ?,
	"reset_token_expires" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."active" = TRUE
AND (
	"usr"."id" = ?
) RETURNING *;`

var ClearResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"reset_token_hash" = NULL,
	"reset_token_expires" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

var DeactivateUserSQL = `UPDATE "users" AS "usr"
SET
	"active" = FALSE
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// Users is the credential store. Every lookup used on an authentication path
// filters inactive accounts, so a soft-deactivated account is invisible to
// login, session resolution, and the reset flow alike.
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*User, error)
	GetByResetTokenHashTx(ctx context.Context, tx bun.IDB, hash string) (*User, error)

	ChangePassword(ctx context.Context, id uuid.UUID, newPassword string) (*User, error)
	ChangePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, newPassword string) (*User, error)
	SetResetToken(ctx context.Context, id uuid.UUID, hash string, expires time.Time) error
	SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string, expires time.Time) error
	ClearResetToken(ctx context.Context, id uuid.UUID) error
	ClearResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetActiveByEmailTx(ctx, a.db, email)
}

func (a *users) GetActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Where("?TableAlias.active = TRUE").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": NormalizeEmail(email),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetActiveByIDTx(ctx, a.db, id)
}

func (a *users) GetActiveByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.active = TRUE").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByResetTokenHash(ctx context.Context, hash string) (*User, error) {
	return a.GetByResetTokenHashTx(ctx, a.db, hash)
}

// GetByResetTokenHashTx matches both the digest and an unexpired expiry in a
// single predicate: an expired or already-cleared token is indistinguishable
// from one that never existed.
func (a *users) GetByResetTokenHashTx(ctx context.Context, tx bun.IDB, hash string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.reset_token_hash = ?", hash).
		Where("?TableAlias.reset_token_expires > ?", time.Now()).
		Where("?TableAlias.active = TRUE").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ChangePassword(ctx context.Context, id uuid.UUID, newPassword string) (*User, error) {
	return a.ChangePasswordTx(ctx, a.db, id, newPassword)
}

// ChangePasswordTx rehashes, stamps password_changed_at slightly in the past,
// and clears any outstanding reset token in the same statement.
func (a *users) ChangePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, newPassword string) (*User, error) {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	changedAt := time.Now().Add(-passwordChangeSkew)

	res, err := a.Repository.RawTx(ctx, tx, ChangeUserPasswordSQL, hash, changedAt, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *users) SetResetToken(ctx context.Context, id uuid.UUID, hash string, expires time.Time) error {
	return a.SetResetTokenTx(ctx, a.db, id, hash, expires)
}

func (a *users) SetResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string, expires time.Time) error {
	res, err := a.Repository.RawTx(ctx, tx, SetResetTokenSQL, hash, expires, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) ClearResetToken(ctx context.Context, id uuid.UUID) error {
	return a.ClearResetTokenTx(ctx, a.db, id)
}

func (a *users) ClearResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, tx, ClearResetTokenSQL, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) Deactivate(ctx context.Context, id uuid.UUID) error {
	return a.DeactivateTx(ctx, a.db, id)
}

func (a *users) DeactivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := a.Repository.RawTx(ctx, tx, DeactivateUserSQL, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.Photo == "" {
		record.Photo = DefaultPhoto
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Active = true
}
