package pipeline

import (
	"context"

	"guardbot/internal/domain"
)

type Result struct {
	IsAllowed  bool
	Reason     string
	FilterName string
	Rule       domain.Rule
	Evidence   string
	Count      int
}
type Filter interface {
	Name() string
	Process(ctx context.Context, payload Payload) (*Result, error)
}
