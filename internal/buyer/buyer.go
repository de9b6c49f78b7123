package buyer

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/iurnickita/artcares/internal/model"
)

// Store - хранилище покупателей с составным ключом уникальности
type Store interface {
	BuyerFindOrCreate(ctx context.Context, identity model.BuyerIdentity) (model.Buyer, error)
}

type Resolver interface {
	Resolve(ctx context.Context, identity model.BuyerIdentity) (model.Buyer, error)
}

var (
	ErrNoEmail      = errors.New("buyer email is empty")
	ErrFieldTooLong = errors.New("buyer field is too long")
)

// Пределы колонок buyer: VARCHAR (255) на поле,
// а весь набор входит в одну запись btree-индекса уникальности (около 2.7 КБ)
const (
	MaxFieldLength   = 255
	MaxIdentityBytes = 2000
)

type resolver struct {
	store Store
}

func NewResolver(store Store) Resolver {
	return &resolver{store: store}
}

// Resolve находит покупателя с полностью совпадающим набором полей или создаёт нового.
// Поля сравниваются как есть, без нормализации
func (resolver *resolver) Resolve(ctx context.Context, identity model.BuyerIdentity) (model.Buyer, error) {
	if err := Validate(identity); err != nil {
		return model.Buyer{}, err
	}

	return resolver.store.BuyerFindOrCreate(ctx, identity)
}

// Validate проверяет, что набор полей поместится в хранилище.
// Вызывается до списания: после него отказ хранилища уходит в сверку
func Validate(identity model.BuyerIdentity) error {
	if identity.Email == "" {
		return ErrNoEmail
	}

	var size int
	for _, field := range fields(identity) {
		if utf8.RuneCountInString(field) > MaxFieldLength {
			return ErrFieldTooLong
		}
		size += len(field)
	}
	if size > MaxIdentityBytes {
		return ErrFieldTooLong
	}
	return nil
}

func fields(identity model.BuyerIdentity) []string {
	return []string{
		identity.Name, identity.Email,
		identity.Billing.Line1, identity.Billing.Apartment, identity.Billing.City, identity.Billing.State,
		identity.Billing.Zip, identity.Billing.Country, identity.Billing.CountryCode,
		identity.ShippingName,
		identity.Shipping.Line1, identity.Shipping.Apartment, identity.Shipping.City, identity.Shipping.State,
		identity.Shipping.Zip, identity.Shipping.Country, identity.Shipping.CountryCode,
	}
}
