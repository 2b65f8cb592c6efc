package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Params captures the claims required to mint an unsigned JWT for local and CI
// environments. All fields come from the caller; no environment variables are
// read so the builder stays deterministic for tooling.
type Params struct {
	ProjectID       string        // identity project id; used for aud and iss
	UserID          string        // uid/sub claim (required)
	Email           string        // email claim (required)
	Name            string        // display name (optional but recommended)
	EmailVerified   bool          // email_verified claim
	TenantID        string        // tenantId custom claim; platform admins may leave it empty
	IsPlatformAdmin bool          // isPlatformAdmin custom claim
	IsTenantAdmin   bool          // isTenantAdmin custom claim
	ExpiresIn       time.Duration // relative expiry; default 1h if zero
	Audience        string        // optional override; defaults to ProjectID
	Issuer          string        // optional override; defaults to securetoken URL
}

// BuildUnsignedToken returns a JWT string with alg "none" and no signature.
// The payload mirrors the Firebase ID token shape so it can flow through the
// auth middleware when AUTH_PROVIDER=unsigned.
func BuildUnsignedToken(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.ProjectID) == "" {
		return "", errors.New("projectID is required")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = fmt.Sprintf("https://securetoken.google.com/%s", p.ProjectID)
	}

	audience := p.Audience
	if strings.TrimSpace(audience) == "" {
		audience = p.ProjectID
	}

	payload := map[string]interface{}{
		"iss":             issuer,
		"aud":             audience,
		"auth_time":       now.Unix(),
		"user_id":         p.UserID,
		"sub":             p.UserID,
		"uid":             p.UserID,
		"iat":             now.Unix(),
		"exp":             now.Add(expiresIn).Unix(),
		"email":           p.Email,
		"email_verified":  p.EmailVerified,
		"name":            p.Name,
		"isPlatformAdmin": p.IsPlatformAdmin,
		"isTenantAdmin":   p.IsTenantAdmin,
	}

	if strings.TrimSpace(p.TenantID) != "" {
		payload["tenantId"] = p.TenantID
	}

	header := map[string]interface{}{
		"alg": "none",
		"typ": "JWT",
	}

	headerSegment, err := encodeSegment(header)
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s", headerSegment, payloadSegment), nil
}

func encodeSegment(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal segment: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}
