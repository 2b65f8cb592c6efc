package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/loopcollab/loop-saas/platform/go/apperrors"
)

// MemoryDirectory is an in-process Directory for tests and local development.
// Email uniqueness is enforced the same way the real provider enforces it.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]Principal
	byEmail map[string]string
	nextID  int

	// Optional fault hooks, keyed per method; tests use these to force
	// mid-saga failures.
	CreateErr    error
	DeleteErr    error
	SetClaimsErr error
}

// NewMemoryDirectory constructs an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]Principal),
		byEmail: make(map[string]string),
	}
}

func (d *MemoryDirectory) CreatePrincipal(ctx context.Context, p NewPrincipal) (Principal, error) {
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	if d.CreateErr != nil {
		return Principal{}, d.CreateErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(p.Email))
	if _, exists := d.byEmail[email]; exists {
		return Principal{}, apperrors.New(apperrors.CodeAlreadyExists, "a principal with this email already exists")
	}

	d.nextID++
	principal := Principal{
		ID:          fmt.Sprintf("principal-%04d", d.nextID),
		Email:       email,
		DisplayName: strings.TrimSpace(p.DisplayName),
	}
	d.byID[principal.ID] = principal
	d.byEmail[email] = principal.ID
	return principal, nil
}

func (d *MemoryDirectory) DeletePrincipal(ctx context.Context, id string) error {
	if d.DeleteErr != nil {
		return d.DeleteErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	principal, ok := d.byID[id]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "principal not found")
	}
	delete(d.byID, id)
	delete(d.byEmail, principal.Email)
	return nil
}

func (d *MemoryDirectory) SetClaims(ctx context.Context, id string, claims Claims) error {
	if d.SetClaimsErr != nil {
		return d.SetClaimsErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	principal, ok := d.byID[id]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "principal not found")
	}
	principal.Claims = claims
	d.byID[id] = principal
	return nil
}

func (d *MemoryDirectory) GetPrincipal(ctx context.Context, id string) (Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	principal, ok := d.byID[id]
	if !ok {
		return Principal{}, apperrors.New(apperrors.CodeNotFound, "principal not found")
	}
	return principal, nil
}

func (d *MemoryDirectory) GetPrincipalByEmail(ctx context.Context, email string) (Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Principal{}, apperrors.New(apperrors.CodeNotFound, "principal not found")
	}
	return d.byID[id], nil
}

// Len reports the number of stored principals; test helper.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

var _ Directory = (*MemoryDirectory)(nil)
