package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/field-workshops/labkit/config"
	"github.com/field-workshops/labkit/http"
	"github.com/field-workshops/labkit/internal/testutil"
	"github.com/field-workshops/labkit/logger"
)

const (
	testAdminPassword = "admin-secret"
	testToken         = "eyJhbGciOiJSUzI1NiJ9.test"
	testRealm         = "workshop"
)

// fakeKeycloak serves the token, user search, creation and deletion endpoints.
type fakeKeycloak struct {
	*httptest.Server
	mu           sync.Mutex
	createStatus int
	deleteStatus int
	users        map[string]string
	created      []userRepresentation
	deleted      []string
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	f := &fakeKeycloak{
		createStatus: nethttp.StatusCreated,
		deleteStatus: nethttp.StatusNoContent,
		users:        map[string]string{testutil.TestUserEmail: "kc-7"},
	}

	mux := nethttp.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "admin-cli", r.PostForm.Get("client_id"))
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("password") != testAdminPassword {
			w.WriteHeader(nethttp.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		if r.PostForm.Get("username") == "tokenless" {
			_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"` + testToken + `","expires_in":60}`))
	})
	mux.HandleFunc("/admin/realms/"+testRealm+"/users", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		switch r.Method {
		case nethttp.MethodPost:
			body, _ := io.ReadAll(r.Body)
			var u userRepresentation
			require.NoError(t, json.Unmarshal(body, &u))
			f.mu.Lock()
			f.created = append(f.created, u)
			status := f.createStatus
			f.mu.Unlock()
			w.WriteHeader(status)
		case nethttp.MethodGet:
			assert.Equal(t, "true", r.URL.Query().Get("briefRepresentation"))
			assert.Equal(t, "11", r.URL.Query().Get("max"))
			w.Header().Set("Content-Type", "application/json")
			id, ok := f.users[r.URL.Query().Get("search")]
			if !ok {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"id":"` + id + `","username":"` + r.URL.Query().Get("search") + `"}]`))
		}
	})
	mux.HandleFunc("/admin/realms/"+testRealm+"/users/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, nethttp.MethodDelete, r.Method)
		f.mu.Lock()
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/admin/realms/"+testRealm+"/users/"))
		status := f.deleteStatus
		f.mu.Unlock()
		w.WriteHeader(status)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeKeycloak) createdUsers() []userRepresentation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]userRepresentation(nil), f.created...)
}

func (f *fakeKeycloak) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	cfg := &config.Config{
		HTTP: config.HTTPConfig{Timeout: 5 * time.Second},
		Keycloak: config.KeycloakConfig{
			Endpoint:      endpoint,
			Realm:         testRealm,
			AdminUser:     "admin",
			AdminPassword: testAdminPassword,
		},
	}
	c, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(&config.Config{}, nil)
	require.Error(t, err)
	assert.True(t, config.IsNotConfigured(err))
}

func TestToken(t *testing.T) {
	kc := newFakeKeycloak(t)
	c := newTestClient(t, kc.URL)

	token, err := c.AdminToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, testToken, token)
}

func TestTokenPayloadLoggingHidesCredentials(t *testing.T) {
	kc := newFakeKeycloak(t)
	var logs bytes.Buffer
	cfg := &config.Config{
		HTTP: config.HTTPConfig{Timeout: 5 * time.Second, LogPayloads: true},
		Keycloak: config.KeycloakConfig{
			Endpoint:      kc.URL,
			Realm:         testRealm,
			AdminUser:     "admin",
			AdminPassword: testAdminPassword,
		},
	}
	c, err := New(cfg, logger.NewWithWriter(&logs, "debug", false))
	require.NoError(t, err)

	token, err := c.AdminToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, testToken, token)

	out := logs.String()
	assert.Contains(t, out, "REST client response payload")
	assert.NotContains(t, out, testAdminPassword)
	assert.NotContains(t, out, testToken)
}

func TestTokenFailures(t *testing.T) {
	kc := newFakeKeycloak(t)
	c := newTestClient(t, kc.URL)

	_, err := c.Token(context.Background(), "admin", "wrong", false)
	require.Error(t, err)
	assert.True(t, http.IsRejectedWithStatus(err, nethttp.StatusUnauthorized))

	token, err := c.Token(context.Background(), "admin", "wrong", true)
	assert.NoError(t, err)
	assert.Empty(t, token)

	_, err = c.Token(context.Background(), "tokenless", testAdminPassword, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")

	_, err = c.Token(context.Background(), "", "", false)
	assert.True(t, http.IsErrorType(err, http.ValidationError))
}

func TestCreateUser(t *testing.T) {
	kc := newFakeKeycloak(t)
	c := newTestClient(t, kc.URL)

	err := c.CreateUser(context.Background(), testToken, UserParams{
		Email:     testutil.TestUserEmail,
		FirstName: "Ada",
		Password:  testutil.TestUserPassword,
	})
	require.NoError(t, err)

	require.Len(t, kc.createdUsers(), 1)
	assert.Equal(t, userRepresentation{
		Email:           testutil.TestUserEmail,
		Username:        testutil.TestUserEmail,
		FirstName:       "Ada",
		LastName:        "Student",
		EmailVerified:   true,
		Enabled:         true,
		RequiredActions: []string{},
		Groups:          []string{},
		Credentials:     []credential{{Type: "password", Value: testutil.TestUserPassword}},
	}, kc.createdUsers()[0])
}

func TestCreateUserRequiresExactly201(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.createStatus = nethttp.StatusOK
	c := newTestClient(t, kc.URL)

	err := c.CreateUser(context.Background(), testToken, UserParams{
		Email:     testutil.TestUserEmail,
		FirstName: "Ada",
		Password:  testutil.TestUserPassword,
	})
	require.Error(t, err)
	assert.True(t, http.IsRejectedWithStatus(err, nethttp.StatusOK))
	assert.Len(t, kc.createdUsers(), 1)

	err = c.CreateUser(context.Background(), testToken, UserParams{Email: "bad", FirstName: "Ada", Password: "x"})
	assert.True(t, http.IsErrorType(err, http.ValidationError))
	assert.Len(t, kc.createdUsers(), 1)
}

func TestUserID(t *testing.T) {
	kc := newFakeKeycloak(t)
	c := newTestClient(t, kc.URL)

	id, err := c.UserID(context.Background(), testToken, testutil.TestUserEmail)
	require.NoError(t, err)
	assert.Equal(t, "kc-7", id)

	_, err = c.UserID(context.Background(), testToken, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	kc := newFakeKeycloak(t)
	c := newTestClient(t, kc.URL)

	require.NoError(t, c.DeleteUser(context.Background(), testToken, testutil.TestUserEmail, false))
	assert.Equal(t, []string{"kc-7"}, kc.deletedIDs())

	assert.ErrorIs(t, c.DeleteUser(context.Background(), testToken, "nobody@example.com", false), ErrUserNotFound)
	assert.NoError(t, c.DeleteUser(context.Background(), testToken, "nobody@example.com", true))
	assert.Len(t, kc.deletedIDs(), 1)
}

func TestDeleteUserCleanupFlag(t *testing.T) {
	kc := newFakeKeycloak(t)
	kc.deleteStatus = nethttp.StatusForbidden
	c := newTestClient(t, kc.URL)

	err := c.DeleteUser(context.Background(), testToken, testutil.TestUserEmail, false)
	require.Error(t, err)
	assert.True(t, http.IsRejectedWithStatus(err, nethttp.StatusForbidden))

	assert.NoError(t, c.DeleteUser(context.Background(), testToken, testutil.TestUserEmail, true))
	assert.Len(t, kc.deletedIDs(), 2)
}
