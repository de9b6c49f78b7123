package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/artcares/internal/auth"
	"github.com/iurnickita/artcares/internal/gzip"
	"github.com/iurnickita/artcares/internal/handler/config"
	"github.com/iurnickita/artcares/internal/logger"
	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/service"
)

// Сообщение при оплаченной, но не оформленной покупке. Повтор спишет деньги ещё раз
const reconciliationMessage = "Your payment succeeded but we could not complete the order; we will follow up."

func Serve(cfg config.Config, auth auth.Auth, ability auth.Ability, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, ability, service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zaplog.Info("starting server", zap.String("addr", cfg.ServerAddr))
	return srv.ListenAndServe()
}

type handler struct {
	auth    auth.Auth
	ability auth.Ability
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, ability auth.Ability, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		auth:    auth,
		ability: ability,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/user/register", h.wrap(h.auth.Register))
	mux.HandleFunc("POST /api/user/login", h.wrap(h.auth.Login))
	mux.HandleFunc("GET /api/artworks", h.wrap(h.GetArtworks))
	mux.HandleFunc("GET /api/artworks/{id}", h.wrap(h.GetArtwork))
	mux.HandleFunc("POST /api/artworks", h.wrap(h.auth.Middleware(h.PostArtwork)))
	mux.HandleFunc("PUT /api/artworks/{id}", h.wrap(h.auth.Middleware(h.PutArtwork)))
	mux.HandleFunc("DELETE /api/artworks/{id}", h.wrap(h.auth.Middleware(h.DeleteArtwork)))
	mux.HandleFunc("POST /api/artworks/{id}/buy", h.wrap(h.PostBuy))
	mux.HandleFunc("GET /api/purchases/{number}", h.wrap(h.GetReceipt))
	mux.HandleFunc("GET /api/admin/reconciliations", h.wrap(h.auth.Middleware(h.GetReconciliations)))
	mux.HandleFunc("POST /api/admin/reconciliations/{id}/resolve", h.wrap(h.auth.Middleware(h.PostResolveReconciliation)))

	return mux
}

func (h *handler) wrap(f http.HandlerFunc) http.HandlerFunc {
	return gzip.GzipMiddleware(logger.RequestLogMdlw(f, h.zaplog))
}

type ArtworkJSON struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Category      string `json:"category"`
	Price         string `json:"price"`
	ShippingPrice string `json:"shipping_price"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
	UserID        string `json:"user_id"`
	CampaignID    int64  `json:"campaign_id"`
}

func artworkJSON(artwork model.Artwork) ArtworkJSON {
	return ArtworkJSON{
		ID:            artwork.ID,
		Title:         artwork.Title,
		Category:      artwork.Category,
		Price:         artwork.Price.StringFixed(2),
		ShippingPrice: artwork.ShippingPrice.StringFixed(2),
		Quantity:      artwork.Quantity,
		Status:        string(artwork.Status),
		UserID:        artwork.UserID,
		CampaignID:    artwork.CampaignID,
	}
}

func (h *handler) GetArtworks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := model.ArtworkFilter{Category: query.Get("category")}

	var err error
	if filter.MinPrice, err = parsePrice(query.Get("min_price")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.MaxPrice, err = parsePrice(query.Get("max_price")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if page := query.Get("page"); page != "" {
		if filter.Page, err = strconv.Atoi(page); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	artworks, err := h.service.ListArtworks(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(artworks) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	artworksJSON := make([]ArtworkJSON, 0, len(artworks))
	for _, artwork := range artworks {
		artworksJSON = append(artworksJSON, artworkJSON(artwork))
	}
	h.writeJSON(w, http.StatusOK, artworksJSON)
}

func (h *handler) GetArtwork(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	artwork, err := h.service.GetArtwork(r.Context(), id)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, artworkJSON(artwork))
}

type PostArtworkJSONRequest struct {
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
	Quantity      int             `json:"quantity"`
	CampaignID    int64           `json:"campaign_id"`
}

func (h *handler) PostArtwork(w http.ResponseWriter, r *http.Request) {
	var req PostArtworkJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromRequest(r)
	decision := h.ability.CanPerform(auth.ActionCreate,
		auth.Target{Resource: auth.ResourceArtwork, Owner: actor.Code}, actor)
	if !decision.Allowed {
		http.Error(w, "You need to be signed up as an artist to list artworks.", http.StatusForbidden)
		return
	}

	id, err := h.service.PostArtwork(r.Context(), model.Artwork{
		Title:         req.Title,
		Category:      req.Category,
		Price:         req.Price,
		ShippingPrice: req.ShippingPrice,
		Quantity:      req.Quantity,
		UserID:        actor.Code,
		CampaignID:    req.CampaignID,
	})
	if err != nil {
		switch err {
		case service.ErrInsufficientData:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case service.ErrUnprocessableEntity:
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// Незаполненные поля не меняются. Статус меняет только администратор
type PutArtworkJSONRequest struct {
	Title         *string              `json:"title"`
	Category      *string              `json:"category"`
	Price         *decimal.Decimal     `json:"price"`
	ShippingPrice *decimal.Decimal     `json:"shipping_price"`
	Quantity      *int                 `json:"quantity"`
	CampaignID    *int64               `json:"campaign_id"`
	Status        *model.ArtworkStatus `json:"status"`
}

func (req PutArtworkJSONRequest) apply(artwork *model.Artwork, actor auth.Actor) {
	if req.Title != nil {
		artwork.Title = *req.Title
	}
	// пустая категория не затирает текущую
	if req.Category != nil && *req.Category != "" {
		artwork.Category = *req.Category
	}
	if req.Price != nil {
		artwork.Price = *req.Price
	}
	if req.ShippingPrice != nil {
		artwork.ShippingPrice = *req.ShippingPrice
	}
	if req.Quantity != nil {
		artwork.Quantity = *req.Quantity
	}
	if req.CampaignID != nil {
		artwork.CampaignID = *req.CampaignID
	}
	if req.Status != nil && actor.Role == model.RoleAdmin {
		artwork.Status = *req.Status
	}
}

func (h *handler) PutArtwork(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PutArtworkJSONRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	artwork, ok := h.ownedArtwork(w, r, id, auth.ActionUpdate, "You need to own the artwork to update it.")
	if !ok {
		return
	}
	seenQuantity := artwork.Quantity
	req.apply(&artwork, auth.ActorFromRequest(r))

	err = h.service.UpdateArtwork(r.Context(), artwork, seenQuantity)
	if err != nil {
		switch err {
		case service.ErrInsufficientData:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case service.ErrUnprocessableEntity:
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case service.ErrConflict:
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, artworkJSON(artwork))
}

func (h *handler) DeleteArtwork(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := h.ownedArtwork(w, r, id, auth.ActionDestroy, "You need to own the artwork to delete it."); !ok {
		return
	}

	err = h.service.DeleteArtwork(r.Context(), id)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ownedArtwork читает работу и проверяет право на действие с ней.
// Чужая работа доступна только администратору
func (h *handler) ownedArtwork(w http.ResponseWriter, r *http.Request, id int64, action auth.Action, denied string) (model.Artwork, bool) {
	artwork, err := h.service.GetArtwork(r.Context(), id)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return model.Artwork{}, false
	}

	actor := auth.ActorFromRequest(r)
	decision := h.ability.CanPerform(action,
		auth.Target{Resource: auth.ResourceArtwork, Owner: artwork.UserID}, actor)
	if !decision.Allowed {
		h.zaplog.Debug("access denied", zap.String("reason", decision.Reason))
		http.Error(w, denied, http.StatusForbidden)
		return model.Artwork{}, false
	}
	return artwork, true
}

// Поля формы оплаты
type PostBuyJSONRequest struct {
	StripeToken string `json:"stripeToken"`
	StripeEmail string `json:"stripeEmail"`

	BillingName        string `json:"stripeBillingName"`
	BillingLine1       string `json:"stripeBillingAddressLine1"`
	BillingApt         string `json:"stripeBillingAddressApt"`
	BillingZip         string `json:"stripeBillingAddressZip"`
	BillingCity        string `json:"stripeBillingAddressCity"`
	BillingState       string `json:"stripeBillingAddressState"`
	BillingCountry     string `json:"stripeBillingAddressCountry"`
	BillingCountryCode string `json:"stripeBillingAddressCountryCode"`

	ShippingName        string `json:"stripeShippingName"`
	ShippingLine1       string `json:"stripeShippingAddressLine1"`
	ShippingApt         string `json:"stripeShippingAddressApt"`
	ShippingZip         string `json:"stripeShippingAddressZip"`
	ShippingCity        string `json:"stripeShippingAddressCity"`
	ShippingState       string `json:"stripeShippingAddressState"`
	ShippingCountry     string `json:"stripeShippingAddressCountry"`
	ShippingCountryCode string `json:"stripeShippingAddressCountryCode"`
}

func (req PostBuyJSONRequest) identity() model.BuyerIdentity {
	return model.BuyerIdentity{
		Name:  req.BillingName,
		Email: req.StripeEmail,
		Billing: model.Address{
			Line1:       req.BillingLine1,
			Apartment:   req.BillingApt,
			City:        req.BillingCity,
			State:       req.BillingState,
			Zip:         req.BillingZip,
			Country:     req.BillingCountry,
			CountryCode: req.BillingCountryCode,
		},
		ShippingName: req.ShippingName,
		Shipping: model.Address{
			Line1:       req.ShippingLine1,
			Apartment:   req.ShippingApt,
			City:        req.ShippingCity,
			State:       req.ShippingState,
			Zip:         req.ShippingZip,
			Country:     req.ShippingCountry,
			CountryCode: req.ShippingCountryCode,
		},
	}
}

type ReceiptJSONResponse struct {
	Number             string `json:"number"`
	ArtworkID          int64  `json:"artwork_id"`
	BuyerID            int64  `json:"buyer_id"`
	ChargeID           string `json:"charge_id"`
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	NotificationFailed bool   `json:"notification_failed,omitempty"`
}

func receiptJSON(receipt model.Receipt) ReceiptJSONResponse {
	return ReceiptJSONResponse{
		Number:             receipt.Number,
		ArtworkID:          receipt.ArtworkID,
		BuyerID:            receipt.BuyerID,
		ChargeID:           receipt.ChargeID,
		Amount:             receipt.Amount,
		Currency:           receipt.Currency,
		NotificationFailed: receipt.NotificationFailed,
	}
}

// PostBuy - покупка работы. Авторизация не нужна, достаточно платёжного токена
func (h *handler) PostBuy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PostBuyJSONRequest
	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := h.service.Buy(r.Context(), model.PurchaseRequest{
		ArtworkID: id,
		Token:     req.StripeToken,
		Identity:  req.identity(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientData):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrUnprocessableEntity):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, service.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrSoldOut):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, service.ErrPaymentDeclined):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, service.ErrReconciliation):
			http.Error(w, reconciliationMessage, http.StatusInternalServerError)
		default:
			http.Error(w, "There was an error processing your purchase.", http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

func (h *handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.GetReceipt(r.Context(), r.PathValue("number"))
	if err != nil {
		switch err {
		case service.ErrInsufficientData:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case service.ErrUnprocessableEntity:
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case service.ErrNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

type ReconciliationJSONResponse struct {
	ID        string              `json:"id"`
	ArtworkID int64               `json:"artwork_id"`
	ChargeID  string              `json:"charge_id"`
	Amount    int64               `json:"amount"`
	Currency  string              `json:"currency"`
	Step      string              `json:"step"`
	Reason    string              `json:"reason"`
	Buyer     model.BuyerIdentity `json:"buyer"`
	CreatedAt time.Time           `json:"created_at"`
	Resolved  bool                `json:"resolved"`
}

func (h *handler) GetReconciliations(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}

	recs, err := h.service.GetReconciliations(r.Context(), r.URL.Query().Get("all") == "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(recs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	recsJSON := make([]ReconciliationJSONResponse, 0, len(recs))
	for _, rec := range recs {
		recsJSON = append(recsJSON, ReconciliationJSONResponse{
			ID:        rec.ID.String(),
			ArtworkID: rec.ArtworkID,
			ChargeID:  rec.ChargeID,
			Amount:    rec.Amount,
			Currency:  rec.Currency,
			Step:      rec.Step,
			Reason:    rec.Reason,
			Buyer:     rec.Identity,
			CreatedAt: rec.CreatedAt,
			Resolved:  rec.Resolved,
		})
	}
	h.writeJSON(w, http.StatusOK, recsJSON)
}

func (h *handler) PostResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.service.ResolveReconciliation(r.Context(), id)
	if err != nil {
		switch err {
		case service.ErrNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// allowed - проверка прав на сверку. Чтение всех ресурсов её не открывает, нужно управление
func (h *handler) allowed(w http.ResponseWriter, r *http.Request) bool {
	actor := auth.ActorFromRequest(r)
	decision := h.ability.CanPerform(auth.ActionManage, auth.Target{Resource: auth.ResourceReconciliation}, actor)
	if !decision.Allowed {
		h.zaplog.Debug("access denied", zap.String("reason", decision.Reason))
		http.Error(w, "You need to be an administrator to do that.", http.StatusForbidden)
		return false
	}
	return true
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}

func parsePrice(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &price, nil
}
