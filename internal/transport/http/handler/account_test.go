package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/wave-api/internal/domain"
)

type mockAccountSvc struct{ mock.Mock }

func (m *mockAccountSvc) session(args mock.Arguments) (*domain.Session, error) {
	s, _ := args.Get(0).(*domain.Session)
	return s, args.Error(1)
}
func (m *mockAccountSvc) Current(ctx context.Context) (*domain.Session, error) {
	return m.session(m.Called(ctx))
}
func (m *mockAccountSvc) Deactivate(ctx context.Context) (*domain.Session, error) {
	return m.session(m.Called(ctx))
}
func (m *mockAccountSvc) Reactivate(ctx context.Context) (*domain.Session, error) {
	return m.session(m.Called(ctx))
}
func (m *mockAccountSvc) RequestDeletion(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *mockAccountSvc) ConfirmDeletion(ctx context.Context, handle, code string) error {
	return m.Called(ctx, handle, code).Error(0)
}

func TestAccount_Toggle(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("Deactivate", mock.Anything).Return(&domain.Session{UserID: "u1", Deactivated: true}, nil)
	svc.On("Reactivate", mock.Anything).Return(&domain.Session{UserID: "u1"}, nil)
	h := NewAccountHandler(svc)

	rr := httptest.NewRecorder()
	h.Toggle(rr, withChiParam(authedReq(http.MethodPut, "/v1/account/deactivate", nil), "action", "deactivate"))
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp SessionEnvelope
	decodeBody(t, rr, &resp)
	assert.True(t, resp.Session.Deactivated)

	rr = httptest.NewRecorder()
	h.Toggle(rr, withChiParam(authedReq(http.MethodPut, "/v1/account/reactivate", nil), "action", "reactivate"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Toggle(rr, withChiParam(authedReq(http.MethodPut, "/v1/account/freeze", nil), "action", "freeze"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAccount_Get_NoSession(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("Current", mock.Anything).Return(nil, fmt.Errorf("no current session: %w", domain.ErrNotFound))
	rr := httptest.NewRecorder()

	NewAccountHandler(svc).Get(rr, authedReq(http.MethodGet, "/v1/account", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAccount_DeleteFlow(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("RequestDeletion", mock.Anything).Return("H1", nil)
	svc.On("ConfirmDeletion", mock.Anything, "H1", "123456").Return(nil)
	h := NewAccountHandler(svc)

	rr := httptest.NewRecorder()
	h.Delete(rr, withChiParam(authedReq(http.MethodPost, "/v1/account/delete/request", nil), "action", "request"))
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp DeletionEnvelope
	decodeBody(t, rr, &resp)
	assert.Equal(t, "H1", resp.Handle)

	body := map[string]string{"handle": "H1", "code": "123456"}
	rr = httptest.NewRecorder()
	h.Delete(rr, withChiParam(authedReq(http.MethodPost, "/v1/account/delete/confirm", body), "action", "confirm"))
	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

func TestAccount_DeleteConfirm_ProviderRejects(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("ConfirmDeletion", mock.Anything, "H1", "000000").Return(domain.NewProviderError("Invalid verification code."))
	rr := httptest.NewRecorder()

	body := map[string]string{"handle": "H1", "code": "000000"}
	NewAccountHandler(svc).Delete(rr, withChiParam(authedReq(http.MethodPost, "/v1/account/delete/confirm", body), "action", "confirm"))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var resp MessageEnvelope
	decodeBody(t, rr, &resp)
	assert.Equal(t, "Invalid verification code.", resp.Error)
}
