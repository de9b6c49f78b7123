package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/artcares/internal/auth"
	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/service"
)

type fakeService struct {
	buyReq     model.PurchaseRequest
	buyErr     error
	posted     model.Artwork
	artworks   []model.Artwork
	filter     model.ArtworkFilter
	recs       []model.Reconciliation
	resolved   uuid.UUID
	receiptErr error
	updated    []model.Artwork
	seen       int
	updateErr  error
	deleted    []int64
}

func (s *fakeService) Buy(_ context.Context, req model.PurchaseRequest) (model.Receipt, error) {
	s.buyReq = req
	if s.buyErr != nil {
		return model.Receipt{}, s.buyErr
	}
	return model.Receipt{Number: "18", ArtworkID: req.ArtworkID, BuyerID: 1, ChargeID: "ch_1", Amount: 11000, Currency: "usd"}, nil
}

func (s *fakeService) GetArtwork(_ context.Context, id int64) (model.Artwork, error) {
	for _, artwork := range s.artworks {
		if artwork.ID == id {
			return artwork, nil
		}
	}
	return model.Artwork{}, service.ErrNotFound
}

func (s *fakeService) ListArtworks(_ context.Context, filter model.ArtworkFilter) ([]model.Artwork, error) {
	s.filter = filter
	return s.artworks, nil
}

func (s *fakeService) PostArtwork(_ context.Context, artwork model.Artwork) (int64, error) {
	s.posted = artwork
	return 7, nil
}

func (s *fakeService) UpdateArtwork(_ context.Context, artwork model.Artwork, seenQuantity int) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, artwork)
	s.seen = seenQuantity
	return nil
}

func (s *fakeService) DeleteArtwork(_ context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeService) GetReceipt(_ context.Context, number string) (model.Receipt, error) {
	if s.receiptErr != nil {
		return model.Receipt{}, s.receiptErr
	}
	return model.Receipt{Number: number}, nil
}

func (s *fakeService) GetReconciliations(_ context.Context, _ bool) ([]model.Reconciliation, error) {
	return s.recs, nil
}

func (s *fakeService) ResolveReconciliation(_ context.Context, id uuid.UUID) error {
	for _, rec := range s.recs {
		if rec.ID == id {
			s.resolved = id
			return nil
		}
	}
	return service.ErrNotFound
}

// fakeAuth пропускает всех, роль берётся из заголовка запроса
type fakeAuth struct{}

func (fakeAuth) Register(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
func (fakeAuth) Login(w http.ResponseWriter, _ *http.Request)    { w.WriteHeader(http.StatusOK) }
func (fakeAuth) Middleware(h http.HandlerFunc) http.HandlerFunc  { return h }

func newTestRouter(s *fakeService) http.Handler {
	return newHandler(fakeAuth{}, auth.NewAbility(), s, zap.NewNop()).newRouter()
}

func do(router http.Handler, method, target, body string, role model.Role) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	if role != "" {
		r.Header.Set(auth.HeaderUserCodeKey, "1")
		r.Header.Set(auth.HeaderUserRoleKey, string(role))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

const buyBody = `{
	"stripeToken": "tok_visa",
	"stripeEmail": "ada@example.com",
	"stripeBillingName": "Ada Buyer",
	"stripeBillingAddressLine1": "1 Gallery Row",
	"stripeBillingAddressZip": "73301",
	"stripeBillingAddressCity": "Austin",
	"stripeBillingAddressState": "TX",
	"stripeBillingAddressCountry": "United States",
	"stripeBillingAddressCountryCode": "US",
	"stripeShippingName": "Ada Buyer",
	"stripeShippingAddressLine1": "1 Gallery Row",
	"stripeShippingAddressApt": "2B",
	"stripeShippingAddressZip": "73301",
	"stripeShippingAddressCity": "Austin",
	"stripeShippingAddressState": "TX",
	"stripeShippingAddressCountry": "United States",
	"stripeShippingAddressCountryCode": "US"
}`

func TestPostBuy(t *testing.T) {
	s := &fakeService{}
	router := newTestRouter(s)

	w := do(router, http.MethodPost, "/api/artworks/5/buy", buyBody, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var receipt ReceiptJSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, "18", receipt.Number)
	assert.Equal(t, int64(11000), receipt.Amount)

	assert.Equal(t, int64(5), s.buyReq.ArtworkID)
	assert.Equal(t, "tok_visa", s.buyReq.Token)
	assert.Equal(t, "ada@example.com", s.buyReq.Identity.Email)
	assert.Equal(t, "Ada Buyer", s.buyReq.Identity.Name)
	assert.Equal(t, "2B", s.buyReq.Identity.Shipping.Apartment)
	assert.Equal(t, "", s.buyReq.Identity.Billing.Apartment)
	assert.Equal(t, "US", s.buyReq.Identity.Billing.CountryCode)
}

func TestPostBuyErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{name: "insufficient data", err: service.ErrInsufficientData, code: http.StatusBadRequest},
		{name: "field too long", err: service.ErrUnprocessableEntity, code: http.StatusUnprocessableEntity},
		{name: "not found", err: service.ErrNotFound, code: http.StatusNotFound},
		{name: "sold out", err: service.ErrSoldOut, code: http.StatusConflict},
		{
			name: "declined",
			err:  &service.DeclineError{Message: "Your card was declined."},
			code: http.StatusPaymentRequired,
			body: "Your card was declined.\n",
		},
		{
			name: "reconciliation",
			err: &service.ReconciliationError{
				ArtworkID: 5, ChargeID: "ch_1", Step: model.ReconciliationStepInventory,
				RecordID: uuid.New(), Err: errors.New("stale"),
			},
			code: http.StatusInternalServerError,
			body: reconciliationMessage + "\n",
		},
		{name: "unexpected", err: errors.New("boom"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeService{buyErr: tt.err})
			w := do(router, http.MethodPost, "/api/artworks/5/buy", buyBody, "")
			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}

	router := newTestRouter(&fakeService{})
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/artworks/x/buy", buyBody, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/artworks/5/buy", "{", "").Code)
}

func TestGetArtworks(t *testing.T) {
	s := &fakeService{artworks: []model.Artwork{{
		ID:            1,
		Title:         "Harbor at Dusk",
		Category:      "painting",
		Price:         decimal.RequireFromString("100"),
		ShippingPrice: decimal.RequireFromString("9.5"),
		Quantity:      1,
		Status:        model.ArtworkStatusAvailable,
	}}}
	router := newTestRouter(s)

	w := do(router, http.MethodGet, "/api/artworks?category=Painting&min_price=50&page=2", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var artworks []ArtworkJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &artworks))
	require.Len(t, artworks, 1)
	assert.Equal(t, "100.00", artworks[0].Price)
	assert.Equal(t, "9.50", artworks[0].ShippingPrice)

	assert.Equal(t, "Painting", s.filter.Category)
	assert.Equal(t, 2, s.filter.Page)
	require.NotNil(t, s.filter.MinPrice)
	assert.True(t, decimal.NewFromInt(50).Equal(*s.filter.MinPrice))
	assert.Nil(t, s.filter.MaxPrice)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/artworks?max_price=abc", "", "").Code)

	w = do(router, http.MethodGet, "/api/artworks/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/artworks/2", "", "").Code)

	assert.Equal(t, http.StatusNoContent, do(newTestRouter(&fakeService{}), http.MethodGet, "/api/artworks", "", "").Code)
}

func TestPostArtwork(t *testing.T) {
	body := `{"title":"Harbor at Dusk","category":"painting","price":"100.00","shipping_price":"10","quantity":2}`

	s := &fakeService{}
	router := newTestRouter(s)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPost, "/api/artworks", body, model.RoleMember).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPost, "/api/artworks", body, "").Code)

	w := do(router, http.MethodPost, "/api/artworks", body, model.RoleArtist)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":7}`, w.Body.String())
	assert.Equal(t, "1", s.posted.UserID)
	assert.Equal(t, 2, s.posted.Quantity)
	assert.True(t, decimal.NewFromInt(100).Equal(s.posted.Price))
}

func TestPutArtwork(t *testing.T) {
	// "1" - код пользователя в заголовках, см. do
	own := model.Artwork{ID: 1, Title: "Harbor at Dusk", Category: "painting", Quantity: 2,
		Status: model.ArtworkStatusAvailable, UserID: "1", Price: decimal.NewFromInt(100)}
	foreign := own
	foreign.ID, foreign.UserID = 2, "2"

	s := &fakeService{artworks: []model.Artwork{own, foreign}}
	router := newTestRouter(s)

	// владелец меняет поля, но не статус; пустая категория игнорируется
	body := `{"title":"Harbor at Dawn","category":"","quantity":5,"status":"sold"}`
	w := do(router, http.MethodPut, "/api/artworks/1", body, model.RoleArtist)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, s.updated, 1)
	assert.Equal(t, "Harbor at Dawn", s.updated[0].Title)
	assert.Equal(t, "painting", s.updated[0].Category)
	assert.Equal(t, 5, s.updated[0].Quantity)
	assert.Equal(t, model.ArtworkStatusAvailable, s.updated[0].Status)
	assert.True(t, decimal.NewFromInt(100).Equal(s.updated[0].Price))
	assert.Equal(t, 2, s.seen)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPut, "/api/artworks/2", body, model.RoleArtist).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPut, "/api/artworks/1", body, model.RoleMember).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPut, "/api/artworks/3", body, model.RoleAdmin).Code)
	require.Len(t, s.updated, 1)

	// администратор меняет чужую работу и её статус
	w = do(router, http.MethodPut, "/api/artworks/2", `{"status":"sold"}`, model.RoleAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, s.updated, 2)
	assert.Equal(t, model.ArtworkStatusSold, s.updated[1].Status)
	assert.Equal(t, "2", s.updated[1].UserID)

	s.updateErr = service.ErrConflict
	assert.Equal(t, http.StatusConflict, do(router, http.MethodPut, "/api/artworks/1", body, model.RoleArtist).Code)
}

func TestDeleteArtwork(t *testing.T) {
	own := model.Artwork{ID: 1, Title: "Harbor at Dusk", UserID: "1"}
	foreign := model.Artwork{ID: 2, Title: "Still Life", UserID: "2"}
	s := &fakeService{artworks: []model.Artwork{own, foreign}}
	router := newTestRouter(s)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodDelete, "/api/artworks/2", "", model.RoleArtist).Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodDelete, "/api/artworks/1", "", model.RoleMember).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodDelete, "/api/artworks/3", "", model.RoleAdmin).Code)
	assert.Empty(t, s.deleted)

	assert.Equal(t, http.StatusOK, do(router, http.MethodDelete, "/api/artworks/1", "", model.RoleArtist).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodDelete, "/api/artworks/2", "", model.RoleAdmin).Code)
	assert.Equal(t, []int64{1, 2}, s.deleted)
}

func TestGetReceipt(t *testing.T) {
	router := newTestRouter(&fakeService{})
	w := do(router, http.MethodGet, "/api/purchases/18", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	router = newTestRouter(&fakeService{receiptErr: service.ErrUnprocessableEntity})
	assert.Equal(t, http.StatusUnprocessableEntity, do(router, http.MethodGet, "/api/purchases/19", "", "").Code)

	router = newTestRouter(&fakeService{receiptErr: service.ErrNotFound})
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/purchases/26", "", "").Code)
}

func TestReconciliations(t *testing.T) {
	rec := model.Reconciliation{
		ID:        uuid.New(),
		ArtworkID: 5,
		ChargeID:  "ch_1",
		Amount:    11000,
		Currency:  "usd",
		Step:      model.ReconciliationStepBuyer,
		Reason:    "buyer store unavailable",
	}
	s := &fakeService{recs: []model.Reconciliation{rec}}
	router := newTestRouter(s)

	// только администратор
	for _, role := range []model.Role{"", model.RoleMember, model.RoleArtist} {
		assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/api/admin/reconciliations", "", role).Code)
		assert.Equal(t, http.StatusForbidden,
			do(router, http.MethodPost, "/api/admin/reconciliations/"+rec.ID.String()+"/resolve", "", role).Code)
	}

	w := do(router, http.MethodGet, "/api/admin/reconciliations", "", model.RoleAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []ReconciliationJSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID.String(), recs[0].ID)
	assert.Equal(t, "ch_1", recs[0].ChargeID)

	w = do(router, http.MethodPost, "/api/admin/reconciliations/"+rec.ID.String()+"/resolve", "", model.RoleAdmin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rec.ID, s.resolved)

	assert.Equal(t, http.StatusNotFound,
		do(router, http.MethodPost, "/api/admin/reconciliations/"+uuid.NewString()+"/resolve", "", model.RoleAdmin).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(router, http.MethodPost, "/api/admin/reconciliations/nope/resolve", "", model.RoleAdmin).Code)
}
