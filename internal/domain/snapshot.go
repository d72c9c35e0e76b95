package domain

import "time"

type DepthLevel struct {
	Price    Price    `json:"price"`
	Quantity Quantity `json:"quantity"`
	Orders   int      `json:"orders"`
}

// DepthSnapshot is an aggregated L2 view of a book. Seq is the book version it was taken at.
type DepthSnapshot struct {
	Symbol    Symbol       `json:"symbol"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Seq       uint64       `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
}

func (s *DepthSnapshot) DeepCopy() *DepthSnapshot {
	c := *s
	c.Bids = append([]DepthLevel(nil), s.Bids...)
	c.Asks = append([]DepthLevel(nil), s.Asks...)
	return &c
}
