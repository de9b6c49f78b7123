package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/iurnickita/artcares/internal/model"
	"github.com/iurnickita/artcares/internal/store/config"
)

type Store interface {
	AuthRegister(ctx context.Context, user model.User, passwordHash []byte) (string, error)
	AuthLogin(ctx context.Context, login string) (model.User, []byte, error)
	UserGet(ctx context.Context, code string) (model.User, error)
	ArtworkPost(ctx context.Context, artwork model.Artwork) (int64, error)
	ArtworkGet(ctx context.Context, id int64) (model.Artwork, error)
	ArtworkList(ctx context.Context, filter model.ArtworkFilter) ([]model.Artwork, error)
	ArtworkUpdate(ctx context.Context, artwork model.Artwork, seenQuantity int) error
	ArtworkDelete(ctx context.Context, id int64) error
	ArtworkRecordSale(ctx context.Context, sale model.Sale) (model.Purchase, error)
	BuyerFindOrCreate(ctx context.Context, identity model.BuyerIdentity) (model.Buyer, error)
	PurchaseGet(ctx context.Context, id int64) (model.Purchase, error)
	ReconciliationPost(ctx context.Context, rec model.Reconciliation) error
	ReconciliationGet(ctx context.Context, unresolvedOnly bool) ([]model.Reconciliation, error)
	ReconciliationResolve(ctx context.Context, id uuid.UUID) error
	Close() error
}

var (
	ErrNoRows        = errors.New("no rows")
	ErrAlreadyExists = errors.New("already exists")
	ErrStaleState    = errors.New("artwork was removed or sold out concurrently")
)

// Код ошибки PostgreSQL: нарушение уникальности
const pgUniqueViolation = "23505"

type store struct {
	database *sql.DB
}

func NewStore(cfg config.Config) (Store, error) {
	db, err := sql.Open("pgx", cfg.DBDsn)
	if err != nil {
		return nil, err
	}

	// Таблица учетных записей
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS auth (" +
			" login VARCHAR (20) PRIMARY KEY," +
			" uuid SERIAL UNIQUE," +
			" password VARCHAR (72) NOT NULL," +
			" email VARCHAR (255) NOT NULL," +
			" role VARCHAR (10) NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	// Таблица работ.
	// Остаток не может уйти в минус: проверка на уровне БД
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS artwork (" +
			" id BIGSERIAL PRIMARY KEY," +
			" title VARCHAR (255) NOT NULL," +
			" category VARCHAR (50) NOT NULL," +
			" price NUMERIC (10, 2) NOT NULL," +
			" shipping_price NUMERIC (10, 2) NOT NULL," +
			" quantity INTEGER NOT NULL CHECK (quantity >= 0)," +
			" status VARCHAR (10) NOT NULL," +
			" user_code VARCHAR (10) NOT NULL," +
			" campaign_id BIGINT NOT NULL" +
			" );")
	if err != nil {
		return nil, err
	}

	// Таблица покупателей.
	// Покупатель определяется всем набором полей сразу, отсюда составной ключ уникальности
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS buyer (" +
			" id BIGSERIAL PRIMARY KEY," +
			buyerColumnsDDL() +
			" CONSTRAINT buyer_identity_key UNIQUE (" + buyerColumns + ")" +
			" );")
	if err != nil {
		return nil, err
	}

	// Таблица покупок. Пишется в одной транзакции с изменением остатка
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS purchase (" +
			" id BIGSERIAL PRIMARY KEY," +
			" artwork_id BIGINT NOT NULL," +
			" buyer_id BIGINT NOT NULL REFERENCES buyer (id)," +
			" charge_id VARCHAR (255) NOT NULL," +
			" amount BIGINT NOT NULL," +
			" currency VARCHAR (3) NOT NULL," +
			" created_at TIMESTAMP NOT NULL DEFAULT now()" +
			" );")
	if err != nil {
		return nil, err
	}

	// Таблица сверки.
	// Оплата прошла, а покупка не сохранилась - разбирается оператором вручную
	_, err = db.Exec(
		"CREATE TABLE IF NOT EXISTS reconciliation (" +
			" id UUID PRIMARY KEY," +
			" artwork_id BIGINT NOT NULL," +
			" charge_id VARCHAR (255) NOT NULL," +
			" amount BIGINT NOT NULL," +
			" currency VARCHAR (3) NOT NULL," +
			" step VARCHAR (10) NOT NULL," +
			" reason TEXT NOT NULL," +
			" identity JSONB NOT NULL," +
			" created_at TIMESTAMP NOT NULL," +
			" resolved BOOLEAN NOT NULL DEFAULT false" +
			" );")
	if err != nil {
		return nil, err
	}

	return &store{
		database: db,
	}, nil
}

func (store *store) Close() error {
	return store.database.Close()
}

func (store *store) AuthRegister(ctx context.Context, user model.User, passwordHash []byte) (string, error) {
	// Запись нового пользователя
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO auth (login, password, email, role)"+
			" VALUES ($1, $2, $3, $4)"+
			" RETURNING uuid",
		user.Login,
		string(passwordHash),
		user.Email,
		user.Role)

	// Получение ID пользователя
	var userID int
	err := row.Scan(&userID)
	if err != nil {
		// Проверка: уже существует
		if isUniqueViolation(err) {
			return "", ErrAlreadyExists
		}
		return "", err
	}

	return strconv.Itoa(userID), nil
}

func (store *store) AuthLogin(ctx context.Context, login string) (model.User, []byte, error) {
	var user model.User
	var hash string
	row := store.database.QueryRowContext(ctx,
		"SELECT uuid, login, email, role, password FROM auth"+
			" WHERE login = $1",
		login)
	var userID int
	err := row.Scan(&userID, &user.Login, &user.Email, &user.Role, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, nil, ErrNoRows
		}
		return model.User{}, nil, err
	}
	user.Code = strconv.Itoa(userID)

	return user, []byte(hash), nil
}

func (store *store) UserGet(ctx context.Context, code string) (model.User, error) {
	userID, err := strconv.Atoi(code)
	if err != nil {
		return model.User{}, ErrNoRows
	}

	var user model.User
	row := store.database.QueryRowContext(ctx,
		"SELECT uuid, login, email, role FROM auth"+
			" WHERE uuid = $1",
		userID)
	err = row.Scan(&userID, &user.Login, &user.Email, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNoRows
		}
		return model.User{}, err
	}
	user.Code = strconv.Itoa(userID)

	return user, nil
}

const artworkColumns = "id, title, category, price, shipping_price, quantity, status, user_code, campaign_id"

func scanArtwork(row interface{ Scan(dest ...any) error }) (model.Artwork, error) {
	var artwork model.Artwork
	err := row.Scan(&artwork.ID,
		&artwork.Title,
		&artwork.Category,
		&artwork.Price,
		&artwork.ShippingPrice,
		&artwork.Quantity,
		&artwork.Status,
		&artwork.UserID,
		&artwork.CampaignID)
	return artwork, err
}

func (store *store) ArtworkPost(ctx context.Context, artwork model.Artwork) (int64, error) {
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO artwork (title, category, price, shipping_price, quantity, status, user_code, campaign_id)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"+
			" RETURNING id",
		artwork.Title,
		strings.ToLower(artwork.Category),
		artwork.Price,
		artwork.ShippingPrice,
		artwork.Quantity,
		artwork.Status,
		artwork.UserID,
		artwork.CampaignID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (store *store) ArtworkGet(ctx context.Context, id int64) (model.Artwork, error) {
	row := store.database.QueryRowContext(ctx,
		"SELECT "+artworkColumns+
			" FROM artwork"+
			" WHERE id = $1",
		id)
	artwork, err := scanArtwork(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Artwork{}, ErrNoRows
		}
		return model.Artwork{}, err
	}
	return artwork, nil
}

func (store *store) ArtworkList(ctx context.Context, filter model.ArtworkFilter) ([]model.Artwork, error) {
	// Условия собираются из заполненных полей фильтра
	var where []string
	var args []any
	if filter.Category != "" {
		args = append(args, strings.ToLower(filter.Category))
		where = append(where, "category = $"+strconv.Itoa(len(args)))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		where = append(where, "price >= $"+strconv.Itoa(len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		where = append(where, "price <= $"+strconv.Itoa(len(args)))
	}
	query := "SELECT " + artworkColumns + " FROM artwork"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, model.ArtworkPageSize, (page-1)*model.ArtworkPageSize)
	query += " ORDER BY id" +
		" LIMIT $" + strconv.Itoa(len(args)-1) +
		" OFFSET $" + strconv.Itoa(len(args))

	rows, err := store.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var artworks []model.Artwork
	for rows.Next() {
		artwork, err := scanArtwork(rows)
		if err != nil {
			return nil, err
		}
		artworks = append(artworks, artwork)
	}

	return artworks, rows.Err()
}

// ArtworkUpdate перезаписывает работу, если остаток не менялся после чтения.
// Иначе продажа между чтением и записью была бы потеряна
func (store *store) ArtworkUpdate(ctx context.Context, artwork model.Artwork, seenQuantity int) error {
	res, err := store.database.ExecContext(ctx,
		"UPDATE artwork"+
			" SET title = $1,"+
			"     category = $2,"+
			"     price = $3,"+
			"     shipping_price = $4,"+
			"     quantity = $5,"+
			"     status = $6,"+
			"     campaign_id = $7"+
			" WHERE id = $8"+
			"   AND quantity = $9",
		artwork.Title,
		strings.ToLower(artwork.Category),
		artwork.Price,
		artwork.ShippingPrice,
		artwork.Quantity,
		artwork.Status,
		artwork.CampaignID,
		artwork.ID,
		seenQuantity)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleState
	}
	return nil
}

func (store *store) ArtworkDelete(ctx context.Context, id int64) error {
	res, err := store.database.ExecContext(ctx,
		"DELETE FROM artwork"+
			" WHERE id = $1",
		id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

func (store *store) ArtworkRecordSale(ctx context.Context, sale model.Sale) (model.Purchase, error) {
	tx, err := store.database.BeginTx(ctx, nil)
	if err != nil {
		return model.Purchase{}, err
	}
	defer tx.Rollback()

	// Списание одной единицы. Статус "sold" ставится при любой продаже.
	// Строка блокируется на время транзакции, параллельная продажа перечитает остаток
	res, err := tx.ExecContext(ctx,
		"UPDATE artwork"+
			" SET quantity = quantity - 1,"+
			"     status = $1"+
			" WHERE id = $2"+
			"   AND quantity > 0",
		model.ArtworkStatusSold,
		sale.Artwork.ID)
	if err != nil {
		return model.Purchase{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Purchase{}, err
	}
	if affected == 0 {
		return model.Purchase{}, ErrStaleState
	}

	// Запись покупки
	purchase := model.Purchase{
		ArtworkID: sale.Artwork.ID,
		BuyerID:   sale.Buyer.ID,
		ChargeID:  sale.ChargeID,
		Amount:    sale.Amount,
		Currency:  sale.Currency,
	}
	row := tx.QueryRowContext(ctx,
		"INSERT INTO purchase (artwork_id, buyer_id, charge_id, amount, currency)"+
			" VALUES ($1, $2, $3, $4, $5)"+
			" RETURNING id, created_at",
		purchase.ArtworkID,
		purchase.BuyerID,
		purchase.ChargeID,
		purchase.Amount,
		purchase.Currency)
	if err = row.Scan(&purchase.ID, &purchase.CreatedAt); err != nil {
		return model.Purchase{}, err
	}

	if err = tx.Commit(); err != nil {
		return model.Purchase{}, err
	}
	return purchase, nil
}

// Колонки покупателя в порядке buyerValues
var buyerColumnNames = []string{
	"name", "email",
	"address_line_1", "address_apartment", "address_city", "address_state",
	"address_zip", "address_country", "address_country_code",
	"shipping_name",
	"shipping_address_line_1", "shipping_address_apartment", "shipping_address_city", "shipping_address_state",
	"shipping_address_zip", "shipping_address_country", "shipping_address_country_code",
}

var buyerColumns = strings.Join(buyerColumnNames, ", ")

func buyerColumnsDDL() string {
	var b strings.Builder
	for _, column := range buyerColumnNames {
		b.WriteString(" " + column + " VARCHAR (255) NOT NULL,")
	}
	return b.String()
}

func buyerValues(identity model.BuyerIdentity) []any {
	return []any{
		identity.Name, identity.Email,
		identity.Billing.Line1, identity.Billing.Apartment, identity.Billing.City, identity.Billing.State,
		identity.Billing.Zip, identity.Billing.Country, identity.Billing.CountryCode,
		identity.ShippingName,
		identity.Shipping.Line1, identity.Shipping.Apartment, identity.Shipping.City, identity.Shipping.State,
		identity.Shipping.Zip, identity.Shipping.Country, identity.Shipping.CountryCode,
	}
}

func (store *store) BuyerFindOrCreate(ctx context.Context, identity model.BuyerIdentity) (model.Buyer, error) {
	values := buyerValues(identity)
	placeholders := make([]string, len(buyerColumnNames))
	conditions := make([]string, len(buyerColumnNames))
	for i, column := range buyerColumnNames {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		conditions[i] = column + " = $" + strconv.Itoa(i+1)
	}

	// Вставка. При совпадении всего набора полей строка не создаётся.
	// Параллельная вставка того же набора ждёт первую транзакцию и тоже ничего не создаёт
	buyer := model.Buyer{Identity: identity}
	row := store.database.QueryRowContext(ctx,
		"INSERT INTO buyer ("+buyerColumns+")"+
			" VALUES ("+strings.Join(placeholders, ", ")+")"+
			" ON CONFLICT ON CONSTRAINT buyer_identity_key DO NOTHING"+
			" RETURNING id",
		values...)
	err := row.Scan(&buyer.ID)
	if err == nil {
		return buyer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Buyer{}, err
	}

	// Уже существует - читаем
	row = store.database.QueryRowContext(ctx,
		"SELECT id FROM buyer"+
			" WHERE "+strings.Join(conditions, " AND "),
		values...)
	if err = row.Scan(&buyer.ID); err != nil {
		return model.Buyer{}, err
	}
	return buyer, nil
}

func (store *store) PurchaseGet(ctx context.Context, id int64) (model.Purchase, error) {
	var purchase model.Purchase
	row := store.database.QueryRowContext(ctx,
		"SELECT id, artwork_id, buyer_id, charge_id, amount, currency, created_at"+
			" FROM purchase"+
			" WHERE id = $1",
		id)
	err := row.Scan(&purchase.ID,
		&purchase.ArtworkID,
		&purchase.BuyerID,
		&purchase.ChargeID,
		&purchase.Amount,
		&purchase.Currency,
		&purchase.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Purchase{}, ErrNoRows
		}
		return model.Purchase{}, err
	}
	return purchase, nil
}

func (store *store) ReconciliationPost(ctx context.Context, rec model.Reconciliation) error {
	identity, err := json.Marshal(rec.Identity)
	if err != nil {
		return err
	}
	_, err = store.database.ExecContext(ctx,
		"INSERT INTO reconciliation (id, artwork_id, charge_id, amount, currency, step, reason, identity, created_at)"+
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		rec.ID,
		rec.ArtworkID,
		rec.ChargeID,
		rec.Amount,
		rec.Currency,
		rec.Step,
		rec.Reason,
		string(identity),
		rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (store *store) ReconciliationGet(ctx context.Context, unresolvedOnly bool) ([]model.Reconciliation, error) {
	query := "SELECT id, artwork_id, charge_id, amount, currency, step, reason, identity, created_at, resolved" +
		" FROM reconciliation"
	if unresolvedOnly {
		query += " WHERE NOT resolved"
	}
	query += " ORDER BY created_at"

	rows, err := store.database.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []model.Reconciliation
	for rows.Next() {
		var rec model.Reconciliation
		var identity []byte
		err := rows.Scan(&rec.ID,
			&rec.ArtworkID,
			&rec.ChargeID,
			&rec.Amount,
			&rec.Currency,
			&rec.Step,
			&rec.Reason,
			&identity,
			&rec.CreatedAt,
			&rec.Resolved)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(identity, &rec.Identity); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func (store *store) ReconciliationResolve(ctx context.Context, id uuid.UUID) error {
	res, err := store.database.ExecContext(ctx,
		"UPDATE reconciliation"+
			" SET resolved = true"+
			" WHERE id = $1",
		id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
