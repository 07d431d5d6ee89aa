package mpesa

// STKPushRequest is the wire body for POST /mpesa/stkpush/v1/processrequest.
type STKPushRequest struct {
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

// STKPushResponse is the synchronous acknowledgment. ResponseCode "0" means
// accepted for async processing, never payment success.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// apiError is the Daraja error body shape.
type apiError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	// older endpoints use snake_case
	AltErrorCode    string `json:"error_code"`
	AltErrorMessage string `json:"error_message"`
}

func (e apiError) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return e.AltErrorCode
}

func (e apiError) message() string {
	if e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return e.AltErrorMessage
}

// QueryRequest is the wire body for POST /mpesa/stkpushquery/v1/query.
type QueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// QueryResponse is the synchronous answer to a transaction status query.
type QueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// CallbackMetadataItem is one named value in a success callback. Items must
// be extracted by Name, never positionally.
type CallbackMetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// CallbackMetadata wraps the item list of a success callback.
type CallbackMetadata struct {
	Item []CallbackMetadataItem `json:"Item"`
}

// STKCallback is the asynchronous payment result for one checkout request.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackBody is the nested body the provider posts to the callback URL.
type CallbackBody struct {
	STKCallback *STKCallback `json:"stkCallback"`
}

// CallbackEnvelope is the full callback payload. Pointers keep the structural
// validation honest: a missing level decodes to nil rather than a zero value.
type CallbackEnvelope struct {
	Body *CallbackBody `json:"Body"`
}

// Item looks up a metadata item by name. Returns (nil, false) when absent.
func (m *CallbackMetadata) ItemValue(name string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	for _, it := range m.Item {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}
