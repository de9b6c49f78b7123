package config

import "time"

type Config struct {
	PaymentAddr    string        `long:"payment-addr" env:"PAYMENT_GATEWAY_ADDRESS" default:"https://api.stripe.com" description:"payment gateway address"`
	PaymentKey     string        `long:"payment-key" env:"PAYMENT_SECRET_KEY" description:"payment gateway secret key"`
	Currency       string        `long:"currency" env:"PAYMENT_CURRENCY" default:"usd" description:"currency of every charge"`
	PaymentTimeout time.Duration `long:"payment-timeout" env:"PAYMENT_TIMEOUT" description:"gateway request timeout, 0 keeps the client default"`
}
