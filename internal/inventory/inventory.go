package inventory

import (
	"context"
	"errors"

	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/store"
)

// Store - атомарное списание единицы работы вместе с записью покупки
type Store interface {
	ArtworkRecordSale(ctx context.Context, sale model.Sale) (model.Purchase, error)
}

type Ledger interface {
	RecordSale(ctx context.Context, sale model.Sale) (model.Purchase, error)
}

// ErrStaleState - работа удалена или распродана параллельной покупкой
var ErrStaleState = errors.New("stale artwork state")

type ledger struct {
	store Store
}

func NewLedger(store Store) Ledger {
	return &ledger{store: store}
}

// RecordSale уменьшает остаток на 1 и переводит работу в статус sold
func (ledger *ledger) RecordSale(ctx context.Context, sale model.Sale) (model.Purchase, error) {
	purchase, err := ledger.store.ArtworkRecordSale(ctx, sale)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrStaleState):
			return model.Purchase{}, ErrStaleState
		default:
			return model.Purchase{}, err
		}
	}
	return purchase, nil
}
