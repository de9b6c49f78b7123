package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/theplant/luhn"
	"go.uber.org/zap"

	"github.com/iurnickita/artcares/internal/buyer"
	"github.com/iurnickita/artcares/internal/inventory"
	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/notify"
	"github.com/iurnickita/artcares/internal/service/config"
	"github.com/iurnickita/artcares/internal/service/paymentclient"
	"github.com/iurnickita/artcares/internal/store"
)

type Service interface {
	Buy(ctx context.Context, req model.PurchaseRequest) (model.Receipt, error)
	GetArtwork(ctx context.Context, id int64) (model.Artwork, error)
	ListArtworks(ctx context.Context, filter model.ArtworkFilter) ([]model.Artwork, error)
	PostArtwork(ctx context.Context, artwork model.Artwork) (int64, error)
	UpdateArtwork(ctx context.Context, artwork model.Artwork, seenQuantity int) error
	DeleteArtwork(ctx context.Context, id int64) error
	GetReceipt(ctx context.Context, number string) (model.Receipt, error)
	GetReconciliations(ctx context.Context, unresolvedOnly bool) ([]model.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, id uuid.UUID) error
}

// Store - всё, что сервису нужно от хранилища
type Store interface {
	buyer.Store
	inventory.Store
	UserGet(ctx context.Context, code string) (model.User, error)
	ArtworkPost(ctx context.Context, artwork model.Artwork) (int64, error)
	ArtworkGet(ctx context.Context, id int64) (model.Artwork, error)
	ArtworkList(ctx context.Context, filter model.ArtworkFilter) ([]model.Artwork, error)
	ArtworkUpdate(ctx context.Context, artwork model.Artwork, seenQuantity int) error
	ArtworkDelete(ctx context.Context, id int64) error
	PurchaseGet(ctx context.Context, id int64) (model.Purchase, error)
	ReconciliationPost(ctx context.Context, rec model.Reconciliation) error
	ReconciliationGet(ctx context.Context, unresolvedOnly bool) ([]model.Reconciliation, error)
	ReconciliationResolve(ctx context.Context, id uuid.UUID) error
}

type service struct {
	cfg      config.Config
	store    Store
	buyer    buyer.Resolver
	ledger   inventory.Ledger
	payment  paymentclient.Client
	notifier notify.Dispatcher
	zaplog   *zap.Logger
}

func NewService(cfg config.Config, store Store, notifier notify.Dispatcher, zaplog *zap.Logger) Service {
	payment := paymentclient.NewClient(cfg.PaymentAddr, cfg.PaymentKey, cfg.PaymentTimeout)

	return newService(cfg, store, payment, notifier, zaplog)
}

func newService(cfg config.Config, store Store, payment paymentclient.Client, notifier notify.Dispatcher, zaplog *zap.Logger) *service {
	return &service{
		cfg:      cfg,
		store:    store,
		buyer:    buyer.NewResolver(store),
		ledger:   inventory.NewLedger(store),
		payment:  payment,
		notifier: notifier,
		zaplog:   zaplog,
	}
}

func (service *service) GetArtwork(ctx context.Context, id int64) (model.Artwork, error) {
	artwork, err := service.store.ArtworkGet(ctx, id)
	if err != nil {
		switch err {
		case store.ErrNoRows:
			return model.Artwork{}, ErrNotFound
		default:
			return model.Artwork{}, err
		}
	}
	return artwork, nil
}

func (service *service) ListArtworks(ctx context.Context, filter model.ArtworkFilter) ([]model.Artwork, error) {
	filter.Category = strings.ToLower(filter.Category)
	if filter.Page < 1 {
		filter.Page = 1
	}
	return service.store.ArtworkList(ctx, filter)
}

// PostArtwork выставляет работу. Права проверяются до вызова
func (service *service) PostArtwork(ctx context.Context, artwork model.Artwork) (int64, error) {
	if artwork.Title == "" || artwork.UserID == "" {
		return 0, ErrInsufficientData
	}
	if artwork.Price.IsNegative() || artwork.ShippingPrice.IsNegative() || artwork.Quantity < 0 {
		return 0, ErrUnprocessableEntity
	}

	// работа без остатка сразу продана
	artwork.Status = model.ArtworkStatusAvailable
	if artwork.Quantity == 0 {
		artwork.Status = model.ArtworkStatusSold
	}
	return service.store.ArtworkPost(ctx, artwork)
}

// UpdateArtwork сохраняет изменённую работу. Права и статус проверяются до вызова.
// seenQuantity - остаток на момент чтения: продажа после чтения даёт ErrConflict
func (service *service) UpdateArtwork(ctx context.Context, artwork model.Artwork, seenQuantity int) error {
	if artwork.Title == "" {
		return ErrInsufficientData
	}
	if artwork.Price.IsNegative() || artwork.ShippingPrice.IsNegative() || artwork.Quantity < 0 {
		return ErrUnprocessableEntity
	}
	switch artwork.Status {
	case model.ArtworkStatusAvailable, model.ArtworkStatusSold:
	default:
		return ErrUnprocessableEntity
	}

	err := service.store.ArtworkUpdate(ctx, artwork, seenQuantity)
	if err != nil {
		switch err {
		case store.ErrStaleState:
			return ErrConflict
		default:
			return err
		}
	}
	service.zaplog.Info("artwork updated", zap.Int64("artwork", artwork.ID))
	return nil
}

// DeleteArtwork удаляет работу. Оплата, прошедшая до удаления, уходит в сверку
func (service *service) DeleteArtwork(ctx context.Context, id int64) error {
	err := service.store.ArtworkDelete(ctx, id)
	if err != nil {
		switch err {
		case store.ErrNoRows:
			return ErrNotFound
		default:
			return err
		}
	}
	service.zaplog.Info("artwork deleted", zap.Int64("artwork", id))
	return nil
}

// GetReceipt ищет покупку по номеру квитанции. Номер проверяется по алгоритму Луна
func (service *service) GetReceipt(ctx context.Context, number string) (model.Receipt, error) {
	if number == "" {
		return model.Receipt{}, ErrInsufficientData
	}
	n, err := strconv.Atoi(number)
	if err != nil || n <= 0 || !luhn.Valid(n) {
		return model.Receipt{}, ErrUnprocessableEntity
	}

	purchase, err := service.store.PurchaseGet(ctx, int64(n/10))
	if err != nil {
		switch err {
		case store.ErrNoRows:
			return model.Receipt{}, ErrNotFound
		default:
			return model.Receipt{}, err
		}
	}
	return receiptFromPurchase(purchase), nil
}

func (service *service) GetReconciliations(ctx context.Context, unresolvedOnly bool) ([]model.Reconciliation, error) {
	return service.store.ReconciliationGet(ctx, unresolvedOnly)
}

func (service *service) ResolveReconciliation(ctx context.Context, id uuid.UUID) error {
	err := service.store.ReconciliationResolve(ctx, id)
	if err != nil {
		switch err {
		case store.ErrNoRows:
			return ErrNotFound
		default:
			return err
		}
	}
	service.zaplog.Info("reconciliation resolved", zap.String("id", id.String()))
	return nil
}

// receiptNumber - номер покупки с контрольной цифрой Луна
func receiptNumber(purchaseID int64) string {
	id := int(purchaseID)
	return strconv.Itoa(id*10 + luhn.CalculateLuhn(id))
}

func receiptFromPurchase(purchase model.Purchase) model.Receipt {
	return model.Receipt{
		Number:    receiptNumber(purchase.ID),
		ArtworkID: purchase.ArtworkID,
		BuyerID:   purchase.BuyerID,
		ChargeID:  purchase.ChargeID,
		Amount:    purchase.Amount,
		Currency:  purchase.Currency,
	}
}
