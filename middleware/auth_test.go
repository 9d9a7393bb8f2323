package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otengine/models"
	"otengine/repository/memory"
)

func setup() (*Auth, models.User, models.User) {
	store := memory.New()
	active := store.AddUser(models.User{Username: "asha", Role: models.RoleEmployee, Active: true})
	inactive := store.AddUser(models.User{Username: "gone", Role: models.RoleEmployee, Active: false})
	return NewAuth("test-secret", time.Hour, store), active, inactive
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(user.Username))
}

func do(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	auth, active, inactive := setup()
	h := auth.Middleware(http.HandlerFunc(echoUser))

	token, err := auth.GenerateToken(&active)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if rec := do(h, token); rec.Code != http.StatusOK || rec.Body.String() != "asha" {
		t.Fatalf("valid token: %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(h, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", rec.Code)
	}
	if rec := do(h, token+"x"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("tampered token: %d", rec.Code)
	}

	other := NewAuth("another-secret", time.Hour, nil)
	foreign, _ := other.GenerateToken(&active)
	if rec := do(h, foreign); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token signed with another secret: %d", rec.Code)
	}

	stale, _ := auth.GenerateToken(&inactive)
	if rec := do(h, stale); rec.Code != http.StatusUnauthorized {
		t.Fatalf("inactive user: %d", rec.Code)
	}
}

func TestExpiredToken(t *testing.T) {
	store := memory.New()
	user := store.AddUser(models.User{Username: "asha", Role: models.RoleEmployee, Active: true})
	auth := NewAuth("test-secret", -time.Minute, store)
	token, _ := auth.GenerateToken(&user)
	if _, err := auth.ValidateToken(token); err == nil {
		t.Fatalf("expected an expired token error")
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleAdmin, models.RoleMasterAdmin)(http.HandlerFunc(echoUser))

	cases := []struct {
		name string
		user *models.User
		want int
	}{
		{name: "anonymous", want: http.StatusUnauthorized},
		{name: "employee", user: &models.User{Username: "e", Role: models.RoleEmployee}, want: http.StatusForbidden},
		{name: "admin", user: &models.User{Username: "a", Role: models.RoleAdmin}, want: http.StatusOK},
		{name: "master", user: &models.User{Username: "m", Role: models.RoleMasterAdmin}, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.user != nil {
				req = req.WithContext(WithUser(req.Context(), tc.user))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
