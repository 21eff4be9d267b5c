package domain

import (
	"fmt"
	"time"
)

// CartOwner identifies either a registered user or a guest session, never both.
type CartOwner struct {
	UserID    string `json:"user_id,omitempty" bson:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty" bson:"session_id,omitempty"`
}

func (o CartOwner) Validate() error {
	switch {
	case o.UserID == "" && o.SessionID == "":
		return NewValidationError("owner", "user id or guest session is required")
	case o.UserID != "" && o.SessionID != "":
		return NewValidationError("owner", "cart cannot belong to a user and a guest session")
	}
	return nil
}

func (o CartOwner) IsGuest() bool {
	return o.UserID == ""
}

// Key is the storage key used by repositories and the cache.
func (o CartOwner) Key() string {
	if o.IsGuest() {
		return fmt.Sprintf("guest:%s", o.SessionID)
	}
	return fmt.Sprintf("user:%s", o.UserID)
}

type CartLine struct {
	ProductID int64     `json:"product_id" bson:"product_id"`
	Name      string    `json:"name" bson:"name"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	UnitPrice int64     `json:"unit_price" bson:"unit_price"`
	AddedAt   time.Time `json:"added_at" bson:"added_at"`
}

func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

type Cart struct {
	ID        string     `json:"-" bson:"_id,omitempty"`
	OwnerKey  string     `json:"-" bson:"owner_key"`
	Owner     CartOwner  `json:"owner" bson:"owner"`
	Lines     []CartLine `json:"lines" bson:"lines"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

func NewCart(owner CartOwner, now time.Time) *Cart {
	return &Cart{
		OwnerKey:  owner.Key(),
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Total() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.Subtotal()
	}
	return total
}

// AddLine merges the quantity into an existing line for the same product and
// refreshes its price snapshot, or appends a new line.
func (c *Cart) AddLine(line CartLine) error {
	if line.Quantity <= 0 {
		return NewValidationError("quantity", "must be positive")
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			c.Lines[i].UnitPrice = line.UnitPrice
			c.Lines[i].Name = line.Name
			c.UpdatedAt = line.AddedAt
			return nil
		}
	}
	c.Lines = append(c.Lines, line)
	c.UpdatedAt = line.AddedAt
	return nil
}

// Line returns the line for the product, if present.
func (c *Cart) Line(productID int64) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}
