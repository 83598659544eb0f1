package mpesa

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	transactionTypePayBillOnline = "CustomerPayBillOnline"
	commandBusinessPayment       = "BusinessPayment"
)

// Callback paths registered with M-Pesa, relative to the public host.
const (
	JobPaymentCallbackPath      = "/callbacks/job-payment"
	DispatchTimeoutCallbackPath = "/callbacks/dispatch-queue-timeout"
	DispatchResultCallbackPath  = "/callbacks/dispatch-payment-result"
)

// STKPushRequest is a customer-to-business payment prompt.
type STKPushRequest struct {
	Phone  string
	Amount int64
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous answer to an STK push.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// B2CRequest is a business-to-customer transfer.
type B2CRequest struct {
	Phone   string
	Amount  int64
	Remarks string
}

type b2cBody struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion,omitempty"`
}

// B2CResponse is the synchronous answer to a B2C payment request.
type B2CResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// errorBody is the shape of a Daraja error response.
type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type tokenBody struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// STKCallbackEnvelope is the body posted to the job payment callback URL.
type STKCallbackEnvelope struct {
	Body STKCallbackBody `json:"Body"`
}

// STKCallbackBody wraps the callback itself.
type STKCallbackBody struct {
	STKCallback STKCallback `json:"stkCallback"`
}

// STKCallback is the asynchronous outcome of an STK push.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata lists the transaction details of a successful STK push.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values are numbers or strings depending on the item.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Metadata returns the named item as a string, or "" when absent.
func (c STKCallback) Metadata(name string) string {
	if c.CallbackMetadata == nil {
		return ""
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name == name {
			return rawString(item.Value)
		}
	}
	return ""
}

// ReceiptNumber returns the M-Pesa receipt of a completed payment.
func (c STKCallback) ReceiptNumber() string {
	return c.Metadata("MpesaReceiptNumber")
}

// ResultEnvelope is the body posted to the B2C result and queue timeout URLs.
type ResultEnvelope struct {
	Result B2CResult `json:"Result"`
}

// B2CResult is the asynchronous outcome of a B2C payment request.
type B2CResult struct {
	ResultType               int               `json:"ResultType"`
	ResultCode               int               `json:"ResultCode"`
	ResultDesc               string            `json:"ResultDesc"`
	OriginatorConversationID string            `json:"OriginatorConversationID"`
	ConversationID           string            `json:"ConversationID"`
	TransactionID            string            `json:"TransactionID"`
	ResultParameters         *ResultParameters `json:"ResultParameters,omitempty"`
}

// ResultParameters lists the details of a completed B2C transaction.
type ResultParameters struct {
	ResultParameter []ResultParameter `json:"ResultParameter"`
}

// ResultParameter values are numbers or strings depending on the key.
type ResultParameter struct {
	Key   string          `json:"Key"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Parameter returns the named result parameter as a string, or "" when absent.
func (r B2CResult) Parameter(key string) string {
	if r.ResultParameters == nil {
		return ""
	}
	for _, p := range r.ResultParameters.ResultParameter {
		if p.Key == key {
			return rawString(p.Value)
		}
	}
	return ""
}

func rawString(raw json.RawMessage) string {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return ""
	}
	if strings.HasPrefix(v, `"`) {
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
	}
	return v
}
