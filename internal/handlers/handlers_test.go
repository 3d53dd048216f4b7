package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/usergate/internal/domain"
	"github.com/Skotchmaster/usergate/internal/hash"
	"github.com/Skotchmaster/usergate/internal/models"
	"github.com/Skotchmaster/usergate/internal/policy"
	"github.com/Skotchmaster/usergate/internal/repo"
	"github.com/Skotchmaster/usergate/internal/revocation"
	"github.com/Skotchmaster/usergate/internal/service"
	"github.com/Skotchmaster/usergate/internal/service/search"
	"github.com/Skotchmaster/usergate/internal/testutil"
	"github.com/Skotchmaster/usergate/internal/tokens"
)

type testEnv struct {
	E     *echo.Echo
	A     *AuthHandler
	U     *UserHandler
	P     *PermissionHandler
	Repo  *repo.GormRepo
	Codec *tokens.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	r := &repo.GormRepo{DB: testutil.InitTestDB(t)}
	codec, err := tokens.NewCodec([]byte("test-jwt-secret"), "HS256")
	require.NoError(t, err)
	hasher := hash.Bcrypt{Cost: bcrypt.MinCost}

	sessions := &service.SessionManager{
		Users:       r,
		Hasher:      hasher,
		Codec:       codec,
		Revocations: revocation.NewGuard(revocation.NewMemoryStore(revocation.MemoryConfig{}), time.Second),
	}
	return &testEnv{
		E:     echo.New(),
		A:     &AuthHandler{Sessions: sessions},
		U:     &UserHandler{Users: &service.UserService{Repo: r, Hasher: hasher}},
		P:     &PermissionHandler{Grants: policy.New(r)},
		Repo:  r,
		Codec: codec,
	}
}

func (env *testEnv) jsonContext(method, target string, body any) (echo.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return env.E.NewContext(req, rec), rec
}

func (env *testEnv) createUser(t *testing.T, username string) userResponse {
	t.Helper()
	c, rec := env.jsonContext(http.MethodPost, "/api/users", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "Secret123",
	})
	require.NoError(t, env.U.CreateUser(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var u userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	return u
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func requireHTTPError(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	assert.Equal(t, code, he.Code)
	return he
}

func TestLogin_JSONAndForm(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice")

	c, rec := env.jsonContext(http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "Secret123"})
	require.NoError(t, env.A.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.Equal(t, "bearer", tok.TokenType)
	claims, err := env.Codec.Decode(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	form := url.Values{"username": {"alice"}, "password": {"Secret123"}}
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec = httptest.NewRecorder()
	require.NoError(t, env.A.Login(env.E.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice")

	var messages []any
	for _, creds := range []map[string]string{
		{"username": "alice", "password": "invalid_password"},
		{"username": "nobody", "password": "Secret123"},
	} {
		c, rec := env.jsonContext(http.MethodPost, "/api/login", creds)
		he := requireHTTPError(t, env.A.Login(c), http.StatusUnauthorized)
		assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
		messages = append(messages, he.Message)
	}
	assert.Equal(t, msgBadLogin, messages[0])
	assert.Equal(t, messages[0], messages[1])

	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireHTTPError(t, env.A.Login(env.E.NewContext(req, httptest.NewRecorder())), http.StatusUnprocessableEntity)
}

func TestLogOut(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice")
	token, _, err := env.Codec.Issue("alice", time.Minute)
	require.NoError(t, err)

	c, _ := env.jsonContext(http.MethodPost, "/api/logout", nil)
	requireHTTPError(t, env.A.LogOut(c), http.StatusUnauthorized)

	c, _ = env.jsonContext(http.MethodPost, "/api/logout", nil)
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer not-a-valid-jwt")
	requireHTTPError(t, env.A.LogOut(c), http.StatusUnauthorized)

	c, rec := env.jsonContext(http.MethodPost, "/api/logout", nil)
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	require.NoError(t, env.A.LogOut(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"msg":"Successfully logged out"}`, rec.Body.String())
}

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)

	u := env.createUser(t, "alice")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "User", u.Role)

	c, rec := env.jsonContext(http.MethodPost, "/api/users", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "Secret123",
	})
	requireHTTPError(t, env.U.CreateUser(c), http.StatusBadRequest)
	assert.NotContains(t, rec.Body.String(), "password")

	c, _ = env.jsonContext(http.MethodPost, "/api/users", map[string]string{
		"username": "bob", "email": "bob-at-example", "password": "Secret123",
	})
	requireHTTPError(t, env.U.CreateUser(c), http.StatusUnprocessableEntity)
}

func TestCreateUser_HidesPasswordHash(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.jsonContext(http.MethodPost, "/api/users", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "Secret123",
	})
	require.NoError(t, env.U.CreateUser(c))
	assert.NotContains(t, rec.Body.String(), "Secret123")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestGetUsers(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"carol", "alice", "bob"} {
		env.createUser(t, name)
	}

	c, rec := env.jsonContext(http.MethodGet, "/api/users?skip=1&limit=1&sort_by=username", nil)
	require.NoError(t, env.U.GetUsers(c))
	var users []userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)

	c, rec = env.jsonContext(http.MethodGet, "/api/users?limit=1000&sort_by=password", nil)
	require.NoError(t, env.U.GetUsers(c))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 3)
	assert.Equal(t, "carol", users[0].Username, "unknown sort falls back to created_at")

	c, _ = env.jsonContext(http.MethodGet, "/api/users?skip=abc", nil)
	requireHTTPError(t, env.U.GetUsers(c), http.StatusUnprocessableEntity)
}

func TestGetUpdateDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	env.createUser(t, "bob")
	id := idString(alice.ID)

	c, rec := env.jsonContext(http.MethodGet, "/", nil)
	require.NoError(t, env.U.GetUser(withID(c, id)))
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	c, _ = env.jsonContext(http.MethodGet, "/", nil)
	he := requireHTTPError(t, env.U.GetUser(withID(c, "999")), http.StatusNotFound)
	assert.Equal(t, msgUserNotFound, he.Message)

	c, _ = env.jsonContext(http.MethodGet, "/", nil)
	requireHTTPError(t, env.U.GetUser(withID(c, "x")), http.StatusBadRequest)

	c, rec = env.jsonContext(http.MethodPut, "/", map[string]string{"username": "alicia", "email": "alicia@example.com"})
	require.NoError(t, env.U.UpdateUser(withID(c, id)))
	assert.Contains(t, rec.Body.String(), `"username":"alicia"`)

	c, _ = env.jsonContext(http.MethodPut, "/", map[string]string{"username": "bob", "email": "new@example.com"})
	requireHTTPError(t, env.U.UpdateUser(withID(c, id)), http.StatusBadRequest)

	c, _ = env.jsonContext(http.MethodPut, "/", map[string]string{"username": "ghost", "email": "ghost@example.com"})
	requireHTTPError(t, env.U.UpdateUser(withID(c, "999")), http.StatusNotFound)

	c, rec = env.jsonContext(http.MethodDelete, "/", nil)
	require.NoError(t, env.U.DeleteUser(withID(c, id)))
	assert.Contains(t, rec.Body.String(), `"username":"alicia"`)

	c, _ = env.jsonContext(http.MethodDelete, "/", nil)
	requireHTTPError(t, env.U.DeleteUser(withID(c, id)), http.StatusNotFound)
}

func TestMakeAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	c, rec := env.jsonContext(http.MethodPost, "/", nil)
	require.NoError(t, env.U.MakeAdmin(withID(c, idString(alice.ID))))
	assert.Contains(t, rec.Body.String(), `"role":"Admin"`)

	c, _ = env.jsonContext(http.MethodPost, "/", nil)
	requireHTTPError(t, env.U.MakeAdmin(withID(c, "999")), http.StatusNotFound)
}

func TestPermissions(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.jsonContext(http.MethodPost, "/api/permissions", map[string]string{
		"role": "user", "endpoint": "/api/users/search", "method": "get",
	})
	require.NoError(t, env.P.AddPermission(c))
	assert.JSONEq(t, `{"role":"User","endpoint":"/api/users/search","method":"GET"}`, rec.Body.String())

	c, _ = env.jsonContext(http.MethodPost, "/api/permissions", map[string]string{
		"role": "Root", "endpoint": "/x", "method": "GET",
	})
	requireHTTPError(t, env.P.AddPermission(c), http.StatusUnprocessableEntity)

	c, _ = env.jsonContext(http.MethodPost, "/api/permissions", map[string]string{
		"role": "User", "endpoint": "", "method": "GET",
	})
	requireHTTPError(t, env.P.AddPermission(c), http.StatusUnprocessableEntity)

	c, rec = env.jsonContext(http.MethodGet, "/", nil)
	c.SetParamNames("role")
	c.SetParamValues("User")
	require.NoError(t, env.P.ListPermissions(c))
	var grants []grantBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grants))
	assert.Equal(t, []grantBody{{Role: "User", Endpoint: "/api/users/search", Method: "GET"}}, grants)

	c, _ = env.jsonContext(http.MethodGet, "/", nil)
	c.SetParamNames("role")
	c.SetParamValues("Root")
	requireHTTPError(t, env.P.ListPermissions(c), http.StatusNotFound)
}

func TestSearchHandler(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice")
	env.createUser(t, "bob")

	h := NewSearchHandler(search.SearcherFunc(env.Repo.SearchUsers))

	c, rec := env.jsonContext(http.MethodGet, "/api/users/search?q=ALI&page=1&size=5", nil)
	require.NoError(t, h.Handler(c))
	var body struct {
		Total int64          `json:"total"`
		Users []userResponse `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body.Total)
	require.Len(t, body.Users, 1)
	assert.Equal(t, "alice", body.Users[0].Username)

	c, _ = env.jsonContext(http.MethodGet, "/api/users/search", nil)
	requireHTTPError(t, h.Handler(c), http.StatusBadRequest)

	broken := NewSearchHandler(search.SearcherFunc(func(context.Context, string, int, int) (int64, []models.User, error) {
		return 0, nil, errors.New("cluster red")
	}))
	c, _ = env.jsonContext(http.MethodGet, "/api/users/search?q=a", nil)
	requireHTTPError(t, broken.Handler(c), http.StatusServiceUnavailable)
}

func TestHTTPError_Mapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		err  error
		code int
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrExpired, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{service.ErrConflict, http.StatusBadRequest},
		{service.ErrValidation, http.StatusUnprocessableEntity},
		{service.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		c, _ := env.jsonContext(http.MethodGet, "/", nil)
		requireHTTPError(t, httpError(c, tt.err), tt.code)
	}
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
