package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuildUnsignedToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := BuildUnsignedToken(Params{
		ProjectID:     "local-loop",
		UserID:        "admin-123",
		Email:         "admin@example.com",
		Name:          "Dev Admin",
		EmailVerified: true,
		TenantID:      "9f8d1e0a-0000-0000-0000-000000000001",
		IsTenantAdmin: true,
		ExpiresIn:     time.Hour,
	}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header, payload := splitToken(t, token)
	if got, want := header["alg"], "none"; got != want {
		t.Fatalf("header alg = %v, want %v", got, want)
	}

	if got, want := payload["iss"], "https://securetoken.google.com/local-loop"; got != want {
		t.Errorf("iss = %v, want %v", got, want)
	}
	if got, want := payload["aud"], "local-loop"; got != want {
		t.Errorf("aud = %v, want %v", got, want)
	}
	if got, want := payload["uid"], "admin-123"; got != want {
		t.Errorf("uid = %v, want %v", got, want)
	}
	if got, want := payload["sub"], "admin-123"; got != want {
		t.Errorf("sub = %v, want %v", got, want)
	}
	if got, want := payload["email"], "admin@example.com"; got != want {
		t.Errorf("email = %v, want %v", got, want)
	}
	if got, want := payload["email_verified"], true; got != want {
		t.Errorf("email_verified = %v, want %v", got, want)
	}
	if got, want := payload["tenantId"], "9f8d1e0a-0000-0000-0000-000000000001"; got != want {
		t.Errorf("tenantId = %v, want %v", got, want)
	}
	if got, want := payload["isTenantAdmin"], true; got != want {
		t.Errorf("isTenantAdmin = %v, want %v", got, want)
	}
	if got, want := payload["isPlatformAdmin"], false; got != want {
		t.Errorf("isPlatformAdmin = %v, want %v", got, want)
	}
}

func TestBuildUnsignedTokenOmitsEmptyTenant(t *testing.T) {
	token, err := BuildUnsignedToken(Params{
		ProjectID:       "local-loop",
		UserID:          "platform-ops",
		Email:           "ops@example.com",
		IsPlatformAdmin: true,
	}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, payload := splitToken(t, token)
	if _, present := payload["tenantId"]; present {
		t.Errorf("tenantId claim should be absent, got %v", payload["tenantId"])
	}
	if got, want := payload["isPlatformAdmin"], true; got != want {
		t.Errorf("isPlatformAdmin = %v, want %v", got, want)
	}
}

func TestBuildUnsignedTokenRequiresIdentity(t *testing.T) {
	_, err := BuildUnsignedToken(Params{ProjectID: "local-loop"}, time.Time{})
	if err == nil {
		t.Fatal("expected error for missing userID")
	}
}

func splitToken(t *testing.T, token string) (map[string]interface{}, map[string]interface{}) {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		t.Fatalf("invalid token format: %q", token)
	}

	header := decodeSegment(t, parts[0])
	payload := decodeSegment(t, parts[1])
	return header, payload
}

func decodeSegment(t *testing.T, segment string) map[string]interface{} {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		t.Fatalf("decode segment: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
	return out
}
