package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/iurnickita/artcares/internal/model"
)

// Шаблоны уведомлений о покупке
const (
	TemplateNewPurchase       = "new_purchase"
	TemplateNewPurchaseThanks = "new_purchase_thanks"
)

// Notice - уведомление для одного получателя
type Notice struct {
	Template     string `json:"template"`
	Recipient    string `json:"recipient"`
	ArtworkID    int64  `json:"artwork_id"`
	ArtworkTitle string `json:"artwork_title"`
	BuyerID      int64  `json:"buyer_id"`
	BuyerName    string `json:"buyer_name"`
	ChargeID     string `json:"charge_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`

	Shipping     model.Address `json:"shipping"`
	ShippingName string        `json:"shipping_name"`
}

type Sender interface {
	Send(ctx context.Context, notice Notice) error
}

type Dispatcher interface {
	NotifySale(ctx context.Context, sale model.Sale) error
}

var ErrNoRecipient = errors.New("notice has no recipient")

type dispatcher struct {
	sender Sender
}

func NewDispatcher(sender Sender) Dispatcher {
	return &dispatcher{sender: sender}
}

// NotifySale отправляет продавцу и покупателю по уведомлению.
// Ошибка одного не мешает отправке другого, ошибки объединяются
func (d *dispatcher) NotifySale(ctx context.Context, sale model.Sale) error {
	base := Notice{
		ArtworkID:    sale.Artwork.ID,
		ArtworkTitle: sale.Artwork.Title,
		BuyerID:      sale.Buyer.ID,
		BuyerName:    sale.Buyer.Identity.Name,
		ChargeID:     sale.ChargeID,
		Amount:       sale.Amount,
		Currency:     sale.Currency,
		Shipping:     sale.Buyer.Identity.Shipping,
		ShippingName: sale.Buyer.Identity.ShippingName,
	}

	seller := base
	seller.Template = TemplateNewPurchase
	seller.Recipient = sale.SellerEmail

	buyer := base
	buyer.Template = TemplateNewPurchaseThanks
	buyer.Recipient = sale.Buyer.Identity.Email

	return errors.Join(d.send(ctx, seller), d.send(ctx, buyer))
}

func (d *dispatcher) send(ctx context.Context, notice Notice) error {
	if notice.Recipient == "" {
		return fmt.Errorf("%s: %w", notice.Template, ErrNoRecipient)
	}
	if err := d.sender.Send(ctx, notice); err != nil {
		return fmt.Errorf("%s to %s: %w", notice.Template, notice.Recipient, err)
	}
	return nil
}
