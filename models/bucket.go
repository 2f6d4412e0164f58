package models

import (
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
)

const (
	MinPosition = 1
	MaxPosition = 6
	MaxQuantity = 99
)

var (
	ErrInvalidPosition     = errors.New("unknown catalog position")
	ErrQuantityLimit       = errors.New("quantity limit reached")
	ErrPositionNotInBucket = errors.New("position is not in the bucket")
)

// Position is a catalog position number.
type Position int

// Bucket maps a catalog position to a positive quantity.
type Bucket map[Position]int

type bucketEntry struct {
	Position int `validate:"min=1,max=6"`
	Quantity int `validate:"min=1,max=99"`
}

var validate = validator.New()

func (p Position) Valid() bool {
	return validate.Var(int(p), "min=1,max=6") == nil
}

// Validate checks every entry against the catalog bounds.
func (b Bucket) Validate() error {
	for pos, qty := range b {
		if err := validate.Struct(bucketEntry{Position: int(pos), Quantity: qty}); err != nil {
			return err
		}
	}
	return nil
}

// Count is the total number of items across all positions.
func (b Bucket) Count() int {
	n := 0
	for _, qty := range b {
		n += qty
	}
	return n
}

// Positions returns the bucket positions in ascending order.
func (b Bucket) Positions() []Position {
	out := make([]Position, 0, len(b))
	for pos := range b {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Add returns a copy of the bucket with one more unit of pos.
func (b Bucket) Add(pos Position) (Bucket, error) {
	if !pos.Valid() {
		return nil, ErrInvalidPosition
	}
	next := b.clone()
	if next[pos] >= MaxQuantity {
		return nil, ErrQuantityLimit
	}
	next[pos]++
	return next, nil
}

// Remove returns a copy of the bucket without pos.
func (b Bucket) Remove(pos Position) (Bucket, error) {
	if _, ok := b[pos]; !ok {
		return nil, ErrPositionNotInBucket
	}
	next := b.clone()
	delete(next, pos)
	return next, nil
}

func (b Bucket) clone() Bucket {
	next := make(Bucket, len(b)+1)
	for pos, qty := range b {
		next[pos] = qty
	}
	return next
}
