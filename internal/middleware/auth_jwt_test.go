package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerifyJWT(t *testing.T) {
	secret := "test-secret"
	claims := TokenClaims{
		Sub:      "user-123",
		Exp:      time.Now().Add(time.Hour).Unix(),
		Issuer:   "tester",
		Audience: "clients",
	}
	token, err := SignJWT(secret, claims)
	if err != nil {
		t.Fatalf("SignJWT() unexpected error: %v", err)
	}
	parsed, err := VerifyJWT(secret, token)
	if err != nil {
		t.Fatalf("VerifyJWT() unexpected error: %v", err)
	}
	if *parsed != claims {
		t.Fatalf("VerifyJWT() returned %+v, want %+v", parsed, claims)
	}
}

func TestVerifyJWTRejects(t *testing.T) {
	valid := TokenClaims{Sub: "user-123", Exp: time.Now().Add(time.Hour).Unix()}
	tests := []struct {
		name   string
		secret string
		claims TokenClaims
	}{
		{name: "invalid signature", secret: "secret-b", claims: valid},
		{name: "expired", secret: "secret-a", claims: TokenClaims{Sub: "user-123", Exp: time.Now().Add(-time.Minute).Unix()}},
		{name: "no subject", secret: "secret-a", claims: TokenClaims{Exp: valid.Exp}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token, err := SignJWT("secret-a", tc.claims)
			if err != nil {
				t.Fatalf("SignJWT() error: %v", err)
			}
			if _, err := VerifyJWT(tc.secret, token); err == nil {
				t.Fatalf("VerifyJWT() expected error")
			}
		})
	}
}

func TestAuthJWTSetsUserAndRejectsWithEnvelope(t *testing.T) {
	var seen string
	h := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	token, _ := SignJWT("secret", TokenClaims{Sub: "u1"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "u1" {
		t.Fatalf("user id = %q", seen)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		OK    bool `json:"ok"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.OK || body.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRequireInternalKey(t *testing.T) {
	h := RequireInternalKey("k1")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	tests := []struct {
		header string
		want   int
	}{
		{header: "", want: http.StatusForbidden},
		{header: "k2", want: http.StatusForbidden},
		{header: "k1", want: http.StatusAccepted},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodPost, "/v1/worker", nil)
		if tc.header != "" {
			req.Header.Set(InternalKeyHeader, tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("key %q: status = %d, want %d", tc.header, rec.Code, tc.want)
		}
	}
}
