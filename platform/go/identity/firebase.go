package identity

import (
	"context"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
)

// FirebaseDirectory implements Directory over a Firebase Auth client.
type FirebaseDirectory struct {
	client *fbauth.Client
}

// NewFirebaseDirectory wraps the provided auth client.
func NewFirebaseDirectory(client *fbauth.Client) *FirebaseDirectory {
	if client == nil {
		panic("firebase auth client is required")
	}
	return &FirebaseDirectory{client: client}
}

func (d *FirebaseDirectory) CreatePrincipal(ctx context.Context, p NewPrincipal) (Principal, error) {
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}

	params := (&fbauth.UserToCreate{}).
		Email(strings.ToLower(strings.TrimSpace(p.Email))).
		Password(p.Password).
		DisplayName(strings.TrimSpace(p.DisplayName))

	record, err := d.client.CreateUser(ctx, params)
	if err != nil {
		if fbauth.IsEmailAlreadyExists(err) {
			return Principal{}, apperrors.Wrap(err, apperrors.CodeAlreadyExists, "a principal with this email already exists")
		}
		return Principal{}, apperrors.Wrap(err, apperrors.CodeInternal, "identity directory rejected principal creation")
	}

	return fromUserRecord(record), nil
}

func (d *FirebaseDirectory) DeletePrincipal(ctx context.Context, id string) error {
	if err := d.client.DeleteUser(ctx, id); err != nil {
		if fbauth.IsUserNotFound(err) {
			return apperrors.Wrap(err, apperrors.CodeNotFound, "principal not found")
		}
		return apperrors.Wrap(err, apperrors.CodeInternal, "identity directory rejected principal deletion")
	}
	return nil
}

func (d *FirebaseDirectory) SetClaims(ctx context.Context, id string, claims Claims) error {
	if err := d.client.SetCustomUserClaims(ctx, id, claims.ToMap()); err != nil {
		if fbauth.IsUserNotFound(err) {
			return apperrors.Wrap(err, apperrors.CodeNotFound, "principal not found")
		}
		return apperrors.Wrap(err, apperrors.CodeInternal, "identity directory rejected claims update")
	}
	return nil
}

func (d *FirebaseDirectory) GetPrincipal(ctx context.Context, id string) (Principal, error) {
	record, err := d.client.GetUser(ctx, id)
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return Principal{}, apperrors.Wrap(err, apperrors.CodeNotFound, "principal not found")
		}
		return Principal{}, apperrors.Wrap(err, apperrors.CodeInternal, "identity directory lookup failed")
	}
	return fromUserRecord(record), nil
}

func (d *FirebaseDirectory) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	record, err := d.client.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return Principal{}, apperrors.Wrap(err, apperrors.CodeNotFound, "principal not found")
		}
		return Principal{}, apperrors.Wrap(err, apperrors.CodeInternal, "identity directory lookup failed")
	}
	return fromUserRecord(record), nil
}

func fromUserRecord(record *fbauth.UserRecord) Principal {
	return Principal{
		ID:            record.UID,
		Email:         record.Email,
		DisplayName:   record.DisplayName,
		Claims:        ClaimsFromMap(record.CustomClaims),
		EmailVerified: record.EmailVerified,
		Disabled:      record.Disabled,
	}
}

var _ Directory = (*FirebaseDirectory)(nil)
