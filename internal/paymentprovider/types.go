package paymentprovider

// Версия протокола шлюза и код статуса оплаченного заказа в уведомлении.
const (
	APIVersion      = "1.1"
	TradeStatusPaid = "OD"
)

// Имена параметров запроса на создание платежа и уведомления шлюза.
const (
	ParamAppID        = "appid"
	ParamVersion      = "version"
	ParamTradeOrderID = "trade_order_id"
	ParamTotalFee     = "total_fee"
	ParamTitle        = "title"
	ParamNotifyURL    = "notify_url"
	ParamReturnURL    = "return_url"
	ParamNonce        = "nonce_str"
	ParamTime         = "time"
	ParamType         = "type"
	ParamStatus       = "status"
)

// CreatePaymentResponse синхронный ответ шлюза на создание платежа.
type CreatePaymentResponse struct {
	ErrCode   int    `json:"errcode"`
	ErrMsg    string `json:"errmsg"`
	URL       string `json:"url"`
	URLQRCode string `json:"url_qrcode"`
	Hash      string `json:"hash"`
}

// RedirectURL адрес, на который нужно отправить пользователя для оплаты.
func (r *CreatePaymentResponse) RedirectURL() string {
	if r.URL != "" {
		return r.URL
	}
	return r.URLQRCode
}
