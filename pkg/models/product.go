package models

import (
	"time"
)

// Product is the catalog document. UnitPrice is a fixed-precision decimal
// string in major currency units.
type Product struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Image     string    `bson:"image,omitempty" json:"image,omitempty"`
	UnitPrice string    `bson:"unitPrice" json:"unitPrice"`
	SellerID  string    `bson:"sellerId" json:"sellerId"`
	Stock     int64     `bson:"stock" json:"stock"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
