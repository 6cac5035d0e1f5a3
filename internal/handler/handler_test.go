package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/parceltrack/internal/account"
	"github.com/mmeshcher/parceltrack/internal/dispatch"
	"github.com/mmeshcher/parceltrack/internal/lifecycle"
	"github.com/mmeshcher/parceltrack/internal/middleware"
	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/repository"
	"github.com/mmeshcher/parceltrack/internal/validation"
)

type deliveriesMock struct{ mock.Mock }

func deliveryResult(args mock.Arguments) (*model.Delivery, error) {
	d, _ := args.Get(0).(*model.Delivery)
	return d, args.Error(1)
}

func (m *deliveriesMock) Create(ctx context.Context, details model.DeliveryDetails) (*model.Delivery, error) {
	return deliveryResult(m.Called(ctx, details))
}

func (m *deliveriesMock) Get(ctx context.Context, orderNumber string) (*model.Delivery, error) {
	return deliveryResult(m.Called(ctx, orderNumber))
}

func (m *deliveriesMock) Exists(ctx context.Context, orderNumber string) (bool, error) {
	args := m.Called(ctx, orderNumber)
	return args.Bool(0), args.Error(1)
}

func (m *deliveriesMock) List(ctx context.Context, filter model.DeliveryFilter) ([]model.Delivery, error) {
	args := m.Called(ctx, filter)
	list, _ := args.Get(0).([]model.Delivery)
	return list, args.Error(1)
}

func (m *deliveriesMock) UpdateDetails(ctx context.Context, orderNumber string, details model.DeliveryDetails) (*model.Delivery, error) {
	return deliveryResult(m.Called(ctx, orderNumber, details))
}

func (m *deliveriesMock) MarkDelivered(ctx context.Context, orderNumber, actor string) (*model.Delivery, error) {
	return deliveryResult(m.Called(ctx, orderNumber, actor))
}

type dispatcherMock struct{ mock.Mock }

func (m *dispatcherMock) Dispatch(ctx context.Context, req dispatch.Request) ([]error, error) {
	args := m.Called(ctx, req)
	errs, _ := args.Get(0).([]error)
	return errs, args.Error(1)
}

type accountsMock struct{ mock.Mock }

func accountResult(args mock.Arguments) (*model.Account, error) {
	a, _ := args.Get(0).(*model.Account)
	return a, args.Error(1)
}

func (m *accountsMock) Authenticate(ctx context.Context, login, secret string) (model.Identity, error) {
	args := m.Called(ctx, login, secret)
	id, _ := args.Get(0).(model.Identity)
	return id, args.Error(1)
}

func (m *accountsMock) Register(ctx context.Context, kind model.AccountKind, p account.Profile) (*model.Account, error) {
	return accountResult(m.Called(ctx, kind, p))
}

func (m *accountsMock) Get(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	return accountResult(m.Called(ctx, kind, id))
}

func (m *accountsMock) List(ctx context.Context, kind model.AccountKind, query string) ([]model.Account, error) {
	args := m.Called(ctx, kind, query)
	list, _ := args.Get(0).([]model.Account)
	return list, args.Error(1)
}

func (m *accountsMock) Update(ctx context.Context, kind model.AccountKind, id string, p account.Profile) (*model.Account, error) {
	return accountResult(m.Called(ctx, kind, id, p))
}

func (m *accountsMock) SetActive(ctx context.Context, kind model.AccountKind, id string, active bool) error {
	return m.Called(ctx, kind, id, active).Error(0)
}

func (m *accountsMock) ChangePassword(ctx context.Context, kind model.AccountKind, id, current, next string) error {
	return m.Called(ctx, kind, id, current, next).Error(0)
}

func (m *accountsMock) ExistsByDocument(ctx context.Context, kind model.AccountKind, document string) (bool, error) {
	args := m.Called(ctx, kind, document)
	return args.Bool(0), args.Error(1)
}

type testEnv struct {
	handler    *Handler
	router     http.Handler
	deliveries *deliveriesMock
	dispatcher *dispatcherMock
	accounts   *accountsMock
	tokens     *middleware.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		deliveries: &deliveriesMock{},
		dispatcher: &dispatcherMock{},
		accounts:   &accountsMock{},
		tokens:     middleware.NewTokenIssuer("test-secret", time.Hour),
	}
	env.handler = NewHandler(env.deliveries, env.dispatcher, env.accounts, env.tokens, zap.NewNop())
	env.router = env.handler.SetupRouter()

	t.Cleanup(func() {
		env.deliveries.AssertExpectations(t)
		env.dispatcher.AssertExpectations(t)
		env.accounts.AssertExpectations(t)
	})
	return env
}

func (e *testEnv) token(t *testing.T, name, role string) string {
	t.Helper()

	token, _, err := e.tokens.Issue(model.Identity{
		AccountID: "acc-" + role,
		Login:     strings.ToLower(name),
		Name:      name,
		Roles:     []string{role},
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sampleDelivery() *model.Delivery {
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &model.Delivery{
		ID:          "d-1",
		OrderNumber: "0001",
		DeliveryDetails: model.DeliveryDetails{
			RecipientName: "Ana Silva",
			Address:       model.Address{Street: "Rua das Flores", Number: "10", City: "Recife"},
			SenderName:    "Loja Centro",
			Volumes:       2,
			WeightKg:      3.5,
		},
		Status:    model.DeliveryStatusCreated,
		CreatedAt: created,
		Movements: []model.Movement{
			{Status: model.DeliveryStatusCreated, At: created, Author: "System", Note: "Delivery registered"},
		},
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.On("Authenticate", mock.Anything, "maria", "s3cret").
		Return(model.Identity{AccountID: "u-1", Login: "maria", Name: "Maria", Roles: []string{account.RoleOperator}}, nil)

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", credentialsRequest{Login: "maria", Password: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Maria", resp.Name)
	assert.Equal(t, []string{account.RoleOperator}, resp.Roles)

	identity, err := env.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.AccountID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.TokenCookieName, cookies[0].Name)
	assert.Equal(t, resp.Token, cookies[0].Value)
	assert.Empty(t, rec.Header().Get("Authorization"))
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		authErr    error
		wantStatus int
	}{
		{name: "bad json", body: "{", wantStatus: http.StatusBadRequest},
		{name: "missing password", body: credentialsRequest{Login: "maria"}, wantStatus: http.StatusBadRequest},
		{name: "invalid credentials", body: credentialsRequest{Login: "maria", Password: "x"}, authErr: account.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized},
		{name: "store timeout", body: credentialsRequest{Login: "maria", Password: "x"}, authErr: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable},
		{name: "store failure", body: credentialsRequest{Login: "maria", Password: "x"}, authErr: errors.New("connection reset"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.authErr != nil {
				env.accounts.On("Authenticate", mock.Anything, "maria", "x").Return(model.Identity{}, tt.authErr)
			}

			rec := env.do(t, http.MethodPost, "/api/auth/login", "", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.TokenCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/deliveries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/deliveries", "forged.token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateDelivery(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "Maria", account.RoleOperator)

	env.deliveries.On("Create", mock.Anything, mock.MatchedBy(func(d model.DeliveryDetails) bool {
		return d.RecipientName == "Ana Silva" && d.Volumes == 2 && d.Address.City == "Recife"
	})).Return(sampleDelivery(), nil).Once()

	rec := env.do(t, http.MethodPost, "/api/deliveries", token, deliveryRequest{
		RecipientName: "  Ana Silva ",
		Address:       addressDTO{Street: "Rua das Flores", Number: "10", City: "Recife"},
		SenderName:    "Loja Centro",
		Volumes:       2,
		WeightKg:      3.5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/deliveries/0001", rec.Header().Get("Location"))

	var resp deliveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0001", resp.OrderNumber)
	assert.Equal(t, string(model.DeliveryStatusCreated), resp.Status)
	require.Len(t, resp.Movements, 1)
	assert.Equal(t, "System", resp.Movements[0].Author)
}

func TestCreateDelivery_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "bad json", body: "not json", want: http.StatusBadRequest},
		{name: "missing recipient", body: deliveryRequest{SenderName: "Loja"}, want: http.StatusUnprocessableEntity},
		{name: "negative volumes", body: deliveryRequest{RecipientName: "Ana", Volumes: -1}, want: http.StatusUnprocessableEntity},
		{name: "negative weight", body: deliveryRequest{RecipientName: "Ana", WeightKg: -0.5}, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/deliveries", env.token(t, "Maria", account.RoleOperator), tt.body)
			assert.Equal(t, tt.want, rec.Code)
			env.deliveries.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateDelivery_DriverForbidden(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/deliveries", env.token(t, "Carlos", account.RoleDriver), deliveryRequest{RecipientName: "Ana"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListDeliveries_PassesFilter(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "Carlos", account.RoleDriver)

	env.deliveries.On("List", mock.Anything, model.DeliveryFilter{Query: "recife"}).
		Return([]model.Delivery{*sampleDelivery()}, nil).Once()
	env.deliveries.On("List", mock.Anything, model.DeliveryFilter{PendingOnly: true}).
		Return([]model.Delivery{}, nil).Once()

	rec := env.do(t, http.MethodGet, "/api/deliveries?q=recife", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []deliveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "Ana Silva", all[0].RecipientName)

	rec = env.do(t, http.MethodGet, "/api/deliveries/pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetDelivery_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: repository.ErrDeliveryNotFound, want: http.StatusNotFound},
		{name: "invalid number", err: fmt.Errorf("%w: %q", validation.ErrInvalidOrderNumber, "abc"), want: http.StatusUnprocessableEntity},
		{name: "internal", err: errors.New("pool closed"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.deliveries.On("Get", mock.Anything, "abc").Return(nil, tt.err).Once()

			rec := env.do(t, http.MethodGet, "/api/deliveries/abc", env.token(t, "Maria", account.RoleOperator), nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "pool closed")
		})
	}
}

func TestDeliveryExists(t *testing.T) {
	env := newTestEnv(t)
	env.deliveries.On("Exists", mock.Anything, "7").Return(true, nil).Once()

	rec := env.do(t, http.MethodGet, "/api/deliveries/7/exists", env.token(t, "Maria", account.RoleOperator), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exists":true}`, rec.Body.String())
}

func TestMarkDelivered_UsesTokenName(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "Carlos", account.RoleDriver)

	delivered := sampleDelivery()
	delivered.Status = model.DeliveryStatusDelivered
	env.deliveries.On("MarkDelivered", mock.Anything, "0001", "Carlos").Return(delivered, nil).Once()
	env.deliveries.On("MarkDelivered", mock.Anything, "0002", "Carlos").
		Return(nil, fmt.Errorf("%w: 0002", lifecycle.ErrAlreadyDelivered)).Once()

	rec := env.do(t, http.MethodPost, "/api/deliveries/0001/deliver", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Delivered"`)

	rec = env.do(t, http.MethodPost, "/api/deliveries/0002/deliver", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already delivered")
}

func TestDispatch_ReportsItemErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "Maria", account.RoleOperator)

	env.dispatcher.On("Dispatch", mock.Anything, dispatch.Request{
		DriverID:     "drv-1",
		Actor:        "Maria",
		OrderNumbers: []string{"0001", "0002", "0003"},
	}).Return([]error{
		&dispatch.ItemError{OrderNumber: "0002", Err: lifecycle.ErrAlreadyAssigned},
		&dispatch.ItemError{OrderNumber: "0003", Err: errors.New("connection reset")},
	}, nil).Once()

	rec := env.do(t, http.MethodPost, "/api/dispatches", token, dispatchRequest{
		DriverID: " drv-1 ",
		Orders:   []string{"0001", "0002", "0003"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 2)
	assert.Contains(t, resp.Errors[0], "0002")
	assert.Contains(t, resp.Errors[0], lifecycle.ErrAlreadyAssigned.Error())
	assert.Contains(t, resp.Errors[1], "0003")
	assert.NotContains(t, resp.Errors[1], "connection reset")
}

func TestDispatch_RequestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown driver", err: fmt.Errorf("%w: drv-9", dispatch.ErrDriverNotFound), want: http.StatusNotFound},
		{name: "inactive driver", err: dispatch.ErrDriverInactive, want: http.StatusConflict},
		{name: "no orders", err: dispatch.ErrNoOrders, want: http.StatusUnprocessableEntity},
		{name: "driver required", err: dispatch.ErrDriverRequired, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			rec := env.do(t, http.MethodPost, "/api/dispatches", env.token(t, "Maria", account.RoleOperator), dispatchRequest{DriverID: "drv-9"})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDispatch_DriverForbidden(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/dispatches", env.token(t, "Carlos", account.RoleDriver), dispatchRequest{DriverID: "drv-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func validDriverRequest() accountRequest {
	return accountRequest{
		Name:            "Carlos Souza",
		Document:        "123.456.789-09",
		Email:           "carlos@example.com",
		Login:           "carlos",
		Password:        "s3cret",
		ConfirmPassword: "s3cret",
		License:         licenseDTO{Category: "B", Number: "01234567890", Vehicle: "Fiorino"},
	}
}

func TestRegisterDriver(t *testing.T) {
	env := newTestEnv(t)

	env.accounts.On("Register", mock.Anything, model.AccountKindDriver, mock.MatchedBy(func(p account.Profile) bool {
		return p.Login == "carlos" && p.IsActive && p.License.Number == "01234567890"
	})).Return(&model.Account{
		ID:       "drv-1",
		Kind:     model.AccountKindDriver,
		Name:     "Carlos Souza",
		Document: "123.456.789-09",
		Login:    "carlos",
		IsActive: true,
		License:  model.DriverLicense{Category: "B", Number: "01234567890", Vehicle: "Fiorino"},
	}, nil).Once()

	rec := env.do(t, http.MethodPost, "/api/drivers", env.token(t, "Maria", account.RoleOperator), validDriverRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "drv-1", resp.ID)
	require.NotNil(t, resp.License)
	assert.Equal(t, "Fiorino", resp.License.Vehicle)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterDriver_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *accountRequest)
	}{
		{name: "invalid cpf", mutate: func(r *accountRequest) { r.Document = "123.456.789-00" }},
		{name: "invalid email", mutate: func(r *accountRequest) { r.Email = "carlos.example.com" }},
		{name: "short license", mutate: func(r *accountRequest) { r.License.Number = "12345" }},
		{name: "missing vehicle", mutate: func(r *accountRequest) { r.License.Vehicle = "" }},
		{name: "password mismatch", mutate: func(r *accountRequest) { r.ConfirmPassword = "other" }},
		{name: "missing password", mutate: func(r *accountRequest) { r.Password, r.ConfirmPassword = "", "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := validDriverRequest()
			tt.mutate(&req)

			rec := env.do(t, http.MethodPost, "/api/drivers", env.token(t, "Maria", account.RoleOperator), req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
}

func TestRegisterDriver_DuplicateDocument(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.On("Register", mock.Anything, model.AccountKindDriver, mock.Anything).
		Return(nil, fmt.Errorf("%w: 123.456.789-09", repository.ErrDocumentExists)).Once()

	rec := env.do(t, http.MethodPost, "/api/drivers", env.token(t, "Maria", account.RoleOperator), validDriverRequest())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAccountRoutes_DriverForbidden(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/users", env.token(t, "Carlos", account.RoleDriver), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeactivateUser(t *testing.T) {
	env := newTestEnv(t)
	env.accounts.On("SetActive", mock.Anything, model.AccountKindUser, "u-2", false).Return(nil).Once()
	env.accounts.On("SetActive", mock.Anything, model.AccountKindUser, "u-404", true).Return(repository.ErrAccountNotFound).Once()

	token := env.token(t, "Maria", account.RoleOperator)

	rec := env.do(t, http.MethodPost, "/api/users/u-2/deactivate", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/users/u-404/activate", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "Maria", account.RoleOperator)

	env.accounts.On("ChangePassword", mock.Anything, model.AccountKindDriver, "drv-1", "old", "new").Return(nil).Once()
	env.accounts.On("ChangePassword", mock.Anything, model.AccountKindDriver, "drv-1", "wrong", "new").Return(account.ErrWrongPassword).Once()

	rec := env.do(t, http.MethodPost, "/api/drivers/drv-1/password", token, changePasswordRequest{CurrentPassword: "old", NewPassword: "new", ConfirmPassword: "new"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/drivers/drv-1/password", token, changePasswordRequest{CurrentPassword: "wrong", NewPassword: "new", ConfirmPassword: "new"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/drivers/drv-1/password", token, changePasswordRequest{CurrentPassword: "old", NewPassword: "new", ConfirmPassword: "typo"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDocumentExists(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "Carlos", account.RoleDriver)

	env.accounts.On("ExistsByDocument", mock.Anything, model.AccountKindDriver, "12345678909").Return(true, nil).Once()
	env.accounts.On("ExistsByDocument", mock.Anything, model.AccountKindUser, "12345678909").Return(false, nil).Once()

	rec := env.do(t, http.MethodGet, "/api/documents/12345678909/exists", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exists":true}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/documents/12345678909/exists?kind=user", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"exists":false}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/deliveries", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestUpdateDriver_KeepsDeactivatedAccountInactive(t *testing.T) {
	repo := repository.NewMemoryRepository()
	accounts := account.NewService(repo, zap.NewNop(), nil, time.Second)
	tokens := middleware.NewTokenIssuer("test-secret", time.Hour)
	router := NewHandler(&deliveriesMock{}, &dispatcherMock{}, accounts, tokens, zap.NewNop()).SetupRouter()
	ctx := context.Background()

	req := validDriverRequest()
	driver, err := accounts.Register(ctx, model.AccountKindDriver, req.profile())
	require.NoError(t, err)
	require.NoError(t, accounts.SetActive(ctx, model.AccountKindDriver, driver.ID, false))

	env := &testEnv{router: router, tokens: tokens}
	body := `{"name":"Carlos S. Souza","document":"123.456.789-09","email":"carlos@example.com",` +
		`"login":"carlos","license":{"category":"B","number":"01234567890","vehicle":"Fiorino"}}`
	rec := env.do(t, http.MethodPut, "/api/drivers/"+driver.ID, env.token(t, "Maria", account.RoleOperator), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Carlos S. Souza", resp.Name)
	assert.False(t, resp.IsActive)

	_, err = accounts.Authenticate(ctx, "carlos", "s3cret")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
}
