package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/artcares/internal/buyer"
	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/service/paymentclient"
	"github.com/iurnickita/artcares/internal/store"
)

// Десятичный сдвиг цены в минимальные единицы валюты
const minorUnitExp = 2

// ChargeAmount - цена с доставкой в минимальных единицах валюты
func ChargeAmount(artwork model.Artwork) int64 {
	return artwork.Price.Add(artwork.ShippingPrice).Shift(minorUnitExp).Round(0).IntPart()
}

// Buy проводит покупку: списание, покупатель, остаток, уведомления.
// Повтор с тем же токеном после успеха спишет деньги ещё раз
func (service *service) Buy(ctx context.Context, req model.PurchaseRequest) (model.Receipt, error) {
	if req.ArtworkID == 0 || req.Token == "" || req.Identity.Email == "" {
		return model.Receipt{}, ErrInsufficientData
	}
	// покупатель должен поместиться в хранилище до списания
	if err := buyer.Validate(req.Identity); err != nil {
		return model.Receipt{}, ErrUnprocessableEntity
	}

	artwork, err := service.store.ArtworkGet(ctx, req.ArtworkID)
	if err != nil {
		switch err {
		case store.ErrNoRows:
			return model.Receipt{}, ErrNotFound
		default:
			return model.Receipt{}, err
		}
	}
	if artwork.Quantity <= 0 {
		return model.Receipt{}, ErrSoldOut
	}

	// Сумма фиксируется до списания и больше не пересчитывается
	sale := model.Sale{
		Artwork:  artwork,
		Amount:   ChargeAmount(artwork),
		Currency: service.cfg.Currency,
	}

	// С момента списания отмена запроса ничего не прерывает
	ctx = context.WithoutCancel(ctx)

	charge, err := service.payment.Charge(ctx, req.Token, sale.Amount, sale.Currency,
		fmt.Sprintf("%s purchased %s", req.Identity.Email, artwork.Title))
	if errors.Is(err, paymentclient.ErrChargeUnconfirmed) {
		// идентификатор списания неизвестен, сверка по сумме и покупателю
		return model.Receipt{}, service.reconcile(ctx, sale, req.Identity, model.ReconciliationStepCharge, err)
	}
	if err != nil {
		service.zaplog.Info("payment declined",
			zap.Int64("artwork", artwork.ID),
			zap.Int64("amount", sale.Amount),
			zap.Error(err))
		return model.Receipt{}, &DeclineError{Message: err.Error()}
	}
	sale.ChargeID = charge.ID

	customer, err := service.buyer.Resolve(ctx, req.Identity)
	if err != nil {
		return model.Receipt{}, service.reconcile(ctx, sale, req.Identity, model.ReconciliationStepBuyer, err)
	}
	sale.Buyer = customer

	purchase, err := service.ledger.RecordSale(ctx, sale)
	if err != nil {
		return model.Receipt{}, service.reconcile(ctx, sale, req.Identity, model.ReconciliationStepInventory, err)
	}

	receipt := receiptFromPurchase(purchase)
	if err = service.notifySale(ctx, sale); err != nil {
		receipt.NotificationFailed = true
	}

	service.zaplog.Info("purchase completed",
		zap.String("receipt", receipt.Number),
		zap.Int64("artwork", artwork.ID),
		zap.Int64("buyer", customer.ID),
		zap.String("charge", charge.ID))
	return receipt, nil
}

// reconcile фиксирует оплаченную, но не сохранённую покупку для ручного разбора
func (service *service) reconcile(ctx context.Context, sale model.Sale, identity model.BuyerIdentity, step string, cause error) error {
	rec := model.Reconciliation{
		ID:        uuid.New(),
		ArtworkID: sale.Artwork.ID,
		ChargeID:  sale.ChargeID,
		Amount:    sale.Amount,
		Currency:  sale.Currency,
		Step:      step,
		Reason:    cause.Error(),
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
	}

	service.zaplog.Error("reconciliation failure",
		zap.String("reconciliation", rec.ID.String()),
		zap.String("step", step),
		zap.Int64("artwork", rec.ArtworkID),
		zap.String("charge", rec.ChargeID),
		zap.Int64("amount", rec.Amount),
		zap.String("currency", rec.Currency),
		zap.Any("buyer", identity),
		zap.Error(cause))

	if err := service.store.ReconciliationPost(ctx, rec); err != nil {
		// запись в логе выше остаётся единственным следом
		service.zaplog.Error("reconciliation record not stored",
			zap.String("reconciliation", rec.ID.String()),
			zap.Error(err))
	}

	return &ReconciliationError{
		ArtworkID: rec.ArtworkID,
		ChargeID:  rec.ChargeID,
		Step:      step,
		RecordID:  rec.ID,
		Err:       cause,
	}
}

// notifySale - уведомления продавцу и покупателю. Ошибки не влияют на результат покупки
func (service *service) notifySale(ctx context.Context, sale model.Sale) error {
	seller, err := service.store.UserGet(ctx, sale.Artwork.UserID)
	if err != nil {
		service.zaplog.Warn("notification failure",
			zap.Int64("artwork", sale.Artwork.ID),
			zap.String("seller", sale.Artwork.UserID),
			zap.Error(err))
	}
	sale.SellerEmail = seller.Email

	err = service.notifier.NotifySale(ctx, sale)
	if err != nil {
		service.zaplog.Warn("notification failure",
			zap.Int64("artwork", sale.Artwork.ID),
			zap.String("charge", sale.ChargeID),
			zap.Error(err))
	}
	return err
}
