package repository

import "gorm.io/gorm"

// TxManager runs session-manager sequences that span multiple rows
// inside a single storage transaction.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Run executes fn inside a transaction; a returned error rolls it back.
func (m *TxManager) Run(fn func(tx *gorm.DB) error) error {
	return m.db.Transaction(fn)
}
