package db

import (
	"localshop/internal/domain/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 開発用の商品。既にあれば何もしない。
var devProducts = []model.Product{
	{ID: "P1", ShopID: "S1", Name: "Miel de lavande", Image: "/img/p1.jpg", Price: decimal.RequireFromString("10.00"), IsActive: true},
	{ID: "P2", ShopID: "S1", Name: "Confiture d'abricot", Image: "/img/p2.jpg", Price: decimal.RequireFromString("4.50"), IsActive: true},
	{ID: "P3", ShopID: "S2", Name: "Pain de campagne", Image: "/img/p3.jpg", Price: decimal.RequireFromString("3.20"), IsActive: true},
	{ID: "P4", ShopID: "S2", Name: "Fromage de chèvre", Image: "/img/p4.jpg", Price: decimal.RequireFromString("6.90"), IsActive: true},
}

func SeedDev(gormDB *gorm.DB) error {
	products := append([]model.Product(nil), devProducts...)
	return gormDB.Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
}
