package orders

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an order.
type Status int

const (
	StatusOpen Status = iota
	StatusClosed
)

// Entity carries the identifier shared by stored records.
type Entity struct {
	ID int
}

// Order is a customer order.
type Order struct {
	Entity
	Customer, Note string
	Lines          []*Line
}

type Line struct {
	SKU string
	Qty int
}

// Repository persists orders.
type Repository interface {
	fmt.Stringer
	Save(o *Order) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Place validates and stores an order.
func (s *Service) Place(o *Order) error {
	if o == nil || len(o.Lines) == 0 {
		return fmt.Errorf("empty order")
	}
	for _, l := range o.Lines {
		if l.Qty <= 0 {
			return fmt.Errorf("bad line %s", strings.ToUpper(l.SKU))
		}
	}
	return s.repo.Save(o)
}
