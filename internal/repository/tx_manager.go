package repository

import "context"

// トランザクション内で使う約束
type TxRepos interface {
	Carts() CartRepository
	CartItems() CartItemRepository
	Products() ProductRepository
	AuditLogs() AuditLogRepository
}

// UsecaseからTxの開始/commit/rollbackを隠す。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
