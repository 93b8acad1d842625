package mycoolpay

// PayinParams starts a mobile-money collection from a customer.
type PayinParams struct {
	Amount            int64
	Reason            string
	AppTransactionRef string
	CustomerName      string
	CustomerPhone     string
}

// PayoutParams starts a transfer to a party's mobile-money account.
type PayoutParams struct {
	Amount            int64
	Reason            string
	AppTransactionRef string
	CustomerName      string
	CustomerPhone     string
}

type transferRequest struct {
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Reason            string `json:"reason"`
	AppTransactionRef string `json:"app_transaction_ref"`
	CustomerName      string `json:"customer_name"`
	CustomerPhone     string `json:"customer_phone"`
	CustomerLang      string `json:"customer_lang"`
}

// Transaction is the normalized view of a provider response.
type Transaction struct {
	TransactionRef string
	TransactionID  string
	USSDCode       string
	Status         Status
	Message        string
}

// providerResponse tolerates both response shapes the provider has shipped:
// transaction fields at the root, or nested under "transaction".
type providerResponse struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	TransactionRef    string `json:"transaction_ref"`
	TransactionID     string `json:"transaction_id"`
	USSDCode          string `json:"ussd_code"`
	TransactionStatus string `json:"transaction_status"`

	Transaction *struct {
		TransactionRef    string `json:"transaction_ref"`
		TransactionID     string `json:"transaction_id"`
		USSDCode          string `json:"ussd_code"`
		TransactionStatus string `json:"transaction_status"`
	} `json:"transaction"`
}

func (r providerResponse) normalize() Transaction {
	tx := Transaction{
		TransactionRef: r.TransactionRef,
		TransactionID:  r.TransactionID,
		USSDCode:       r.USSDCode,
		Message:        r.Message,
	}
	rawStatus := r.TransactionStatus
	if r.Transaction != nil {
		if tx.TransactionRef == "" {
			tx.TransactionRef = r.Transaction.TransactionRef
		}
		if tx.TransactionID == "" {
			tx.TransactionID = r.Transaction.TransactionID
		}
		if tx.USSDCode == "" {
			tx.USSDCode = r.Transaction.USSDCode
		}
		if rawStatus == "" {
			rawStatus = r.Transaction.TransactionStatus
		}
	}
	tx.Status = NormalizeStatus(rawStatus)
	return tx
}

// rejected reports whether the provider answered with an API-level error.
func (r providerResponse) rejected() bool {
	return r.Status == "error"
}
