package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absen/internal/account"
	"absen/internal/credential"
	"absen/internal/model"
	"absen/internal/portal"
)

type fakeAccounts struct {
	accounts map[string]model.Account
	regErr   error
	lastReg  account.RegisterInput
}

func (f *fakeAccounts) get(id string) (model.Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return model.Account{}, credential.ErrNotFound
	}
	return acc, nil
}

func (f *fakeAccounts) Register(_ context.Context, in account.RegisterInput) (account.Registration, error) {
	f.lastReg = in
	if f.regErr != nil {
		return account.Registration{}, f.regErr
	}
	_, existed := f.accounts[in.ID]
	acc := model.Account{ID: in.ID, LoginID: in.LoginID, Password: in.Password, Active: true}
	f.accounts[in.ID] = acc
	return account.Registration{Account: acc, Courses: make([]model.Course, 3), Updated: existed}, nil
}

func (f *fakeAccounts) SetActive(_ context.Context, id string, active bool) (model.Account, error) {
	acc, err := f.get(id)
	if err != nil {
		return acc, err
	}
	acc.Active = active
	f.accounts[id] = acc
	return acc, nil
}

func (f *fakeAccounts) Toggle(ctx context.Context, id string) (model.Account, error) {
	acc, err := f.get(id)
	if err != nil {
		return acc, err
	}
	return f.SetActive(ctx, id, !acc.Active)
}

func (f *fakeAccounts) Status(_ context.Context, id string) (account.Status, error) {
	acc, err := f.get(id)
	if err != nil {
		return account.Status{}, err
	}
	return account.Status{Account: acc, TrackedCourses: 2, TrackedItems: 5}, nil
}

func (f *fakeAccounts) Remove(_ context.Context, id string) error {
	if _, err := f.get(id); err != nil {
		return err
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeAccounts) Courses(_ context.Context, id string) ([]model.Course, error) {
	if _, err := f.get(id); err != nil {
		return nil, err
	}
	return []model.Course{{ContentID: "101", Name: "Pemrograman Web"}}, nil
}

func (f *fakeAccounts) Active(context.Context) ([]model.Account, error) {
	out := make([]model.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func newRouter(f *fakeAccounts) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(f, nil).Register(r.Group("/v1"))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoute(t *testing.T) {
	f := &fakeAccounts{accounts: map[string]model.Account{}}
	r := newRouter(f)

	w := do(r, http.MethodPost, "/v1/accounts", `{"id":"u1","login_id":"2021002","password":"s3cret"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "s3cret", "password never leaves the service")

	var body struct {
		Account     accountView `json:"account"`
		CourseCount int         `json:"course_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2021002", body.Account.LoginID)
	assert.Equal(t, 3, body.CourseCount)

	w = do(r, http.MethodPost, "/v1/accounts", `{"id":"u1","login_id":"2021002","password":"s3cret"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/v1/accounts", `{"login_id":"2021002"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterRouteMapsPortalErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad credentials", &portal.LoginError{Reason: "Password salah", Phase: portal.PhaseSubmitted}, http.StatusUnprocessableEntity},
		{"timeout", portal.ErrLoginTimeout, http.StatusGatewayTimeout},
		{"unreachable", portal.ErrPortalUnreachable, http.StatusBadGateway},
		{"invalid", account.ErrInvalidInput, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeAccounts{accounts: map[string]model.Account{}, regErr: tt.err}
			w := do(newRouter(f), http.MethodPost, "/v1/accounts", `{"login_id":"2021002","password":"x"}`)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAccountRoutes(t *testing.T) {
	f := &fakeAccounts{accounts: map[string]model.Account{
		"u1": {ID: "u1", LoginID: "2021002", Active: true},
	}}
	r := newRouter(f)

	w := do(r, http.MethodGet, "/v1/accounts/u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tracked_items":5`)

	w = do(r, http.MethodPost, "/v1/accounts/u1/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.accounts["u1"].Active)

	w = do(r, http.MethodPut, "/v1/accounts/u1/active", `{"active":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.accounts["u1"].Active)

	w = do(r, http.MethodPut, "/v1/accounts/u1/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/v1/accounts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"login_id":"2021002"`)

	w = do(r, http.MethodGet, "/v1/accounts/u1/courses", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Pemrograman Web")

	w = do(r, http.MethodDelete, "/v1/accounts/u1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodGet, "/v1/accounts/u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodDelete, "/v1/accounts/u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
