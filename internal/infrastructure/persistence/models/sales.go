package models

import (
	"time"
)

// ProductModel is a row of the products table
type ProductModel struct {
	ProductID   int64    `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	ProductName string   `gorm:"column:product_name;not null"`
	UnitPrice   *float64 `gorm:"column:unit_price"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// CustomerModel is a row of the customers table
type CustomerModel struct {
	CustomerID  string  `gorm:"column:customer_id;primaryKey"`
	CompanyName string  `gorm:"column:company_name"`
	Country     *string `gorm:"column:country"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// OrderModel is a row of the orders table
type OrderModel struct {
	OrderID    int64      `gorm:"column:order_id;primaryKey;autoIncrement:false"`
	CustomerID *string    `gorm:"column:customer_id;index"`
	OrderDate  *time.Time `gorm:"column:order_date;index"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderDetailModel is a row of the order_details table
type OrderDetailModel struct {
	OrderID   int64    `gorm:"column:order_id;primaryKey;autoIncrement:false"`
	ProductID int64    `gorm:"column:product_id;primaryKey;autoIncrement:false;index"`
	UnitPrice *float64 `gorm:"column:unit_price"`
	Quantity  *int64   `gorm:"column:quantity"`
}

// TableName returns the table name for GORM
func (OrderDetailModel) TableName() string {
	return "order_details"
}

// All returns every model, in dependency order, for test schema setup
func All() []any {
	return []any{&ProductModel{}, &CustomerModel{}, &OrderModel{}, &OrderDetailModel{}}
}
