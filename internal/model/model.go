package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Работы

type ArtworkStatus string

const (
	ArtworkStatusAvailable ArtworkStatus = "available"
	ArtworkStatusSold      ArtworkStatus = "sold"
)

type Artwork struct {
	ID            int64
	Title         string
	Category      string
	Price         decimal.Decimal
	ShippingPrice decimal.Decimal
	Quantity      int
	Status        ArtworkStatus
	UserID        string
	CampaignID    int64
}

// ArtworkFilter - выборка страницы каталога. Пустые поля не применяются
type ArtworkFilter struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Page     int
}

const ArtworkPageSize = 30

// Покупатели

// BuyerIdentity - ключ дедупликации покупателя. В сравнении участвуют все поля
type BuyerIdentity struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Billing Address `json:"billing"`

	ShippingName string  `json:"shipping_name"`
	Shipping     Address `json:"shipping"`
}

type Address struct {
	Line1       string `json:"line1"`
	Apartment   string `json:"apartment"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

type Buyer struct {
	ID       int64
	Identity BuyerIdentity
}

// Покупки

type PurchaseRequest struct {
	ArtworkID int64
	Token     string
	Identity  BuyerIdentity
}

// Sale - оплаченная покупка, передаётся в учёт остатков и в уведомления
type Sale struct {
	Artwork     Artwork
	Buyer       Buyer
	SellerEmail string
	ChargeID    string
	Amount      int64
	Currency    string
}

type Purchase struct {
	ID        int64
	ArtworkID int64
	BuyerID   int64
	ChargeID  string
	Amount    int64
	Currency  string
	CreatedAt time.Time
}

type Receipt struct {
	Number             string
	ArtworkID          int64
	BuyerID            int64
	ChargeID           string
	Amount             int64
	Currency           string
	NotificationFailed bool
}

// Сверка

const (
	// Ответ шлюза не разобран, идентификатор списания неизвестен
	ReconciliationStepCharge    = "charge"
	ReconciliationStepBuyer     = "buyer"
	ReconciliationStepInventory = "inventory"
)

// Reconciliation - деньги списаны, а состояние заказа не сохранено
type Reconciliation struct {
	ID        uuid.UUID
	ArtworkID int64
	ChargeID  string
	Amount    int64
	Currency  string
	Step      string
	Reason    string
	Identity  BuyerIdentity
	CreatedAt time.Time
	Resolved  bool
}

// Пользователи

type Role string

const (
	RoleGuest  Role = "guest"
	RoleMember Role = "member"
	RoleArtist Role = "artist"
	RoleAdmin  Role = "admin"
)

type User struct {
	Code  string
	Login string
	Email string
	Role  Role
}
