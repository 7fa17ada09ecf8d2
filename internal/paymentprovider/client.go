// Package paymentprovider клиент платёжного шлюза: формирует подписанный запрос
// на создание платежа и разбирает синхронный ответ.
package paymentprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/paywall/internal/config"
	"github.com/magabrotheeeer/paywall/internal/lib/sign"
	"github.com/magabrotheeeer/paywall/internal/metrics"
	"github.com/magabrotheeeer/paywall/internal/models"
)

const maxResponseBody = 1 << 20

type Client struct {
	cfg        config.Gateway
	httpClient *http.Client
	now        func() time.Time
	nonce      func() string
}

// NewClient создаёт клиент шлюза с таймаутом из конфигурации.
func NewClient(cfg config.Gateway) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		nonce: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// Params собирает подписанный набор параметров запроса на оплату заказа.
func (c *Client) Params(order *models.PaymentOrder, plan models.Plan) map[string]string {
	params := map[string]string{
		ParamAppID:        c.cfg.AppID,
		ParamVersion:      APIVersion,
		ParamTradeOrderID: order.TradeNo,
		ParamTotalFee:     models.FormatAmount(order.Amount),
		ParamTitle:        plan.Name,
		ParamNotifyURL:    c.cfg.NotifyURL,
		ParamReturnURL:    c.cfg.ReturnURL,
		ParamNonce:        c.nonce(),
		ParamTime:         strconv.FormatInt(c.now().Unix(), 10),
		ParamType:         c.cfg.PaymentType,
	}
	params[sign.HashField] = sign.Sign(params, c.cfg.AppSecret)
	return params
}

// BuildPaymentRequest регистрирует заказ в шлюзе и возвращает адрес страницы оплаты.
//
// Ненулевой errcode возвращается как *models.GatewayRejectedError,
// сетевые ошибки, статус не 2xx и неразборчивый ответ как models.ErrGatewayUnavailable.
func (c *Client) BuildPaymentRequest(ctx context.Context, order *models.PaymentOrder, plan models.Plan) (string, error) {
	const op = "paymentprovider.BuildPaymentRequest"

	if order.TradeNo == "" {
		return "", fmt.Errorf("%s: order %d has no trade number", op, order.ID)
	}

	query := url.Values{}
	for k, v := range c.Params(order, plan) {
		query.Set(k, v)
	}

	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.unavailable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.unavailable(op, fmt.Errorf("unexpected status: %s", resp.Status))
	}

	var body CreatePaymentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return "", c.unavailable(op, err)
	}

	if body.ErrCode != 0 {
		metrics.GatewayErrors.WithLabelValues("rejected").Inc()
		return "", &models.GatewayRejectedError{Code: body.ErrCode, Reason: body.ErrMsg}
	}

	redirect := body.RedirectURL()
	if redirect == "" {
		return "", c.unavailable(op, fmt.Errorf("empty payment url"))
	}

	return redirect, nil
}

func (c *Client) unavailable(op string, err error) error {
	metrics.GatewayErrors.WithLabelValues("unavailable").Inc()
	return fmt.Errorf("%s: %w: %v", op, models.ErrGatewayUnavailable, err)
}
