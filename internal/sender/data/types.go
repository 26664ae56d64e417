package data

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    = OrderStatus("Pending")
	OrderProcessing = OrderStatus("Processing")
	OrderCompleted  = OrderStatus("Completed")
	OrderPartial    = OrderStatus("Partial")
	OrderCanceled   = OrderStatus("Canceled")
	OrderRefunded   = OrderStatus("Refunded")
)

// EqualFold compares statuses case-insensitively; supplier responses report
// them in arbitrary casing ("canceled", "Canceled", "CANCELLED").
func (s OrderStatus) EqualFold(other OrderStatus) bool {
	a := normalizeStatus(string(s))
	b := normalizeStatus(string(other))
	return a == b
}

func normalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "cancelled" {
		return "canceled"
	}
	return s
}

const (
	SupplierSMMGen  = "smmgen"
	SupplierK2Boost = "k2boost"

	// FailedDispatchRef is the sentinel supplier reference written to orders
	// whose dispatch to the supplier API failed.
	FailedDispatchRef = "123456"
)

type Order struct {
	ID                int64
	Email             string
	ServiceName       string
	Link              string
	Quantity          int64
	Remain            int64
	StartCount        int64
	SupplierName      string
	SupplierServiceID string
	SupplierOrderID   string
	SellCharge        decimal.Decimal
	BuyCharge         decimal.Decimal
	Status            OrderStatus
	RefundAmount      decimal.Decimal
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

type Service struct {
	ID                int64
	Name              string
	Source            string
	SupplierServiceID string
	BuyPrice          decimal.Decimal
	SellPrice         decimal.Decimal
	PerQuantity       int64
	TotalSoldQty      int64
}

type User struct {
	ID                  int64
	Email               string
	BalanceUSD          decimal.Decimal
	TotalSpend          decimal.Decimal
	RefOwnerID          int64
	WithdrawableBalance decimal.Decimal
}

type VerificationStatus string

const (
	VerificationUnused = VerificationStatus("unused")
	VerificationUsed   = VerificationStatus("used")
)

type PaymentVerification struct {
	ID            int64
	Method        string
	AmountUSD     decimal.Decimal
	TransactionID string
	Status        VerificationStatus
}

type TransactionStatus string

const (
	TransactionPending    = TransactionStatus("Pending")
	TransactionChecking   = TransactionStatus("Checking")
	TransactionAccepted   = TransactionStatus("Accepted")
	TransactionUnverified = TransactionStatus("Unverified")
	TransactionFailed     = TransactionStatus("Failed")
)

type Transaction struct {
	ID            int64
	Email         string
	Method        string
	Amount        decimal.Decimal
	TransactionID string
	Status        TransactionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AffiliateStatus string

const (
	AffiliatePending  = AffiliateStatus("Pending")
	AffiliateAccepted = AffiliateStatus("Accepted")
	AffiliateFailed   = AffiliateStatus("Failed")
)

type Affiliate struct {
	ID      int64
	Email   string
	Name    string
	PhoneID string
	Method  string
	Amount  decimal.Decimal
	Status  AffiliateStatus
}

type SupportStatus string

const (
	SupportPending  = SupportStatus("Pending")
	SupportAnswered = SupportStatus("Answered")
	SupportClosed   = SupportStatus("Closed")
)

type SupportTicket struct {
	ID        int64
	Email     string
	Subject   string
	OrderID   string
	Message   string
	Status    SupportStatus
	ReplyText string
	RepliedAt *time.Time
	CreatedAt time.Time
}
