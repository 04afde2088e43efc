package domain

import "time"

// PaymentSettings holds the payment details shown to contributors.
type PaymentSettings struct {
	QRCodeURL     string    `json:"qr_code_url"`
	UPIID         string    `json:"upi_id,omitempty"`
	AccountNumber string    `json:"account_number,omitempty"`
	BankName      string    `json:"bank_name,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PlatformStats backs the admin dashboard.
type PlatformStats struct {
	Users               int   `json:"users"`
	Vendors             int   `json:"vendors"`
	Investors           int   `json:"investors"`
	Campaigns           int   `json:"campaigns"`
	ActiveCampaigns     int   `json:"active_campaigns"`
	Contributions       int   `json:"contributions"`
	TotalVerifiedAmount int64 `json:"total_verified_amount"`
}
