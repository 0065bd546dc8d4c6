// internal/storage/models/activity.go
package models

// Статусы записей журнала
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Activity is one journaled wallet operation. Amounts are decimal strings in
// human units.
type Activity struct {
	BaseModel
	Hash      string `gorm:"uniqueIndex;not null;type:varchar(66)" json:"hash"`
	Wallet    string `gorm:"index;not null;type:varchar(42)" json:"wallet"`
	Kind      string `gorm:"not null;type:varchar(32)" json:"kind"`
	TokenIn   string `gorm:"type:varchar(42)" json:"tokenIn"`
	TokenOut  string `gorm:"type:varchar(42)" json:"tokenOut"`
	AmountIn  string `gorm:"type:varchar(80)" json:"amountIn"`
	AmountOut string `gorm:"type:varchar(80)" json:"amountOut"`
	Status    string `gorm:"not null;type:varchar(20)" json:"status"`
	Simulated bool   `gorm:"not null;default:false" json:"simulated"`
	Error     string `gorm:"type:text" json:"error,omitempty"`
}
