package paymentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// JSON ответ шлюза на списание
type Charge struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Paid     bool   `json:"paid"`
	Status   string `json:"status"`
	// Причина отказа при paid=false
	FailureMessage string `json:"failure_message"`
}

// JSON ответ шлюза с ошибкой
type errorAnswer struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChargeError - отказ в списании. Отказ карты, ошибка шлюза и сетевая ошибка не различаются
type ChargeError struct {
	Message string
}

func (e *ChargeError) Error() string {
	return e.Message
}

// ErrChargeUnconfirmed - шлюз ответил успехом, но ответ не разобран. Списание могло пройти
var ErrChargeUnconfirmed = errors.New("payment gateway accepted the charge but the answer is unreadable")

const chargesPath = "/v1/charges"

type Client interface {
	Charge(ctx context.Context, token string, amount int64, currency string, description string) (Charge, error)
}

type paymentClient struct {
	client *resty.Client
}

// NewClient создаёт клиент шлюза. Повторов нет: отклонённую карту нельзя списывать повторно.
// Нулевой timeout оставляет значение клиента по умолчанию
func NewClient(serviceAddr string, secretKey string, timeout time.Duration) Client {
	client := resty.New().
		SetBaseURL(serviceAddr).
		SetBasicAuth(secretKey, "").
		SetRetryCount(0)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return paymentClient{client: client}
}

func (client paymentClient) Charge(ctx context.Context, token string, amount int64, currency string, description string) (Charge, error) {
	setreq := client.client.R()
	setreq.Method = http.MethodPost
	setreq.URL = chargesPath
	setreq.SetContext(ctx)
	setreq.SetFormData(map[string]string{
		"amount":      strconv.FormatInt(amount, 10),
		"currency":    currency,
		"source":      token,
		"description": description,
	})
	setresp, err := setreq.Send()
	if err != nil {
		return Charge{}, &ChargeError{Message: err.Error()}
	}

	switch {
	case setresp.IsSuccess():
		var charge Charge
		if err = json.Unmarshal(setresp.Body(), &charge); err != nil {
			return Charge{}, fmt.Errorf("%w: %v", ErrChargeUnconfirmed, err)
		}
		if !charge.Paid {
			message := charge.FailureMessage
			if message == "" {
				message = fmt.Sprintf("charge %s: %s", charge.ID, charge.Status)
			}
			return Charge{}, &ChargeError{Message: message}
		}
		return charge, nil
	default:
		var answer errorAnswer
		if err = json.Unmarshal(setresp.Body(), &answer); err != nil || answer.Error.Message == "" {
			return Charge{}, &ChargeError{Message: fmt.Sprintf("payment gateway status: %d", setresp.StatusCode())}
		}
		return Charge{}, &ChargeError{Message: answer.Error.Message}
	}
}
