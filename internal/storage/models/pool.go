// internal/storage/models/pool.go
package models

// PoolSnapshot сохраняет состояние пула на момент чтения.
type PoolSnapshot struct {
	BaseModel
	PoolAddress string `gorm:"index;not null;type:varchar(42)" json:"poolAddress"`
	Name        string `gorm:"not null;type:varchar(50)" json:"name"`
	Token1      string `gorm:"not null;type:varchar(42)" json:"token1"`
	Token2      string `gorm:"not null;type:varchar(42)" json:"token2"`
	Reserve1    string `gorm:"type:varchar(80)" json:"reserve1"`
	Reserve2    string `gorm:"type:varchar(80)" json:"reserve2"`
	TotalSupply string `gorm:"type:varchar(80)" json:"totalSupply"`
	TVL         string `gorm:"type:varchar(80)" json:"tvl"`
}
