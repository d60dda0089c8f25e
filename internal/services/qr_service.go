package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"net/url"

	"github.com/ruralpay/wallet/internal/identity"
	"github.com/ruralpay/wallet/internal/money"
	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// ReceiveCode is a scannable request for funds addressed to one user.
type ReceiveCode struct {
	Payload string `json:"payload" example:"wallet:transfer?to=alice&currency=INR&amount=250.00"`
	QRImage string `json:"qr_image"` // base64-encoded PNG
}

// QRService renders receive codes. It never reads or changes balances.
type QRService struct {
	users identity.Directory
}

func NewQRService(users identity.Directory) *QRService {
	return &QRService{users: users}
}

// ReceiveCode builds the transfer payload for userID and renders it as a PNG.
// A zero amount leaves the amount for the payer to choose.
func (s *QRService) ReceiveCode(ctx context.Context, userID, currency string, amount money.Amount) (*ReceiveCode, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	currency, err := money.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	user, err := s.users.ResolveUser(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	if err != nil {
		return nil, translate(err)
	}

	payload := fmt.Sprintf("wallet:transfer?to=%s&currency=%s", url.QueryEscape(user.Username), currency)
	if amount.IsPositive() {
		payload += "&amount=" + amount.String()
	}

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(qrImageSize)); err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}

	return &ReceiveCode{
		Payload: payload,
		QRImage: base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
