package filters

import (
	"context"

	"guardbot/internal/bannedterms"
	"guardbot/internal/domain"
	"guardbot/internal/messages"
	"guardbot/internal/pipeline"
)

type WordFilter struct {
	terms *bannedterms.Set
}

func NewWordFilter(terms *bannedterms.Set) *WordFilter {
	return &WordFilter{terms: terms}
}
func (f *WordFilter) Name() string {
	return "word_filter"
}
func (f *WordFilter) Process(_ context.Context, payload pipeline.Payload) (*pipeline.Result, error) {
	term, ok := f.terms.Match(payload.Text)
	if !ok {
		return &pipeline.Result{IsAllowed: true}, nil
	}
	return &pipeline.Result{
		IsAllowed:  false,
		Reason:     messages.MsgReasonBannedTerm,
		FilterName: f.Name(),
		Rule:       domain.RuleBannedTerm,
		Evidence:   term,
	}, nil
}
