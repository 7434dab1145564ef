package filters

import (
	"context"
	"testing"

	"guardbot/internal/bannedterms"
	"guardbot/internal/domain"
	"guardbot/internal/messages"
	"guardbot/internal/pipeline"

	"github.com/stretchr/testify/assert"
)

func TestWordFilter_Process(t *testing.T) {
	f := NewWordFilter(bannedterms.New("bad", "spam"))
	tests := []struct {
		name         string
		message      string
		wantAllowed  bool
		wantEvidence string
	}{
		{
			name:        "Clean message",
			message:     "Hello world",
			wantAllowed: true,
		},
		{
			name:         "Exact match",
			message:      "bad",
			wantAllowed:  false,
			wantEvidence: "bad",
		},
		{
			name:         "blocked word case insensitive",
			message:      "Some BAD word",
			wantAllowed:  false,
			wantEvidence: "bad",
		},
		{
			name:         "Partial match",
			message:      "badword",
			wantAllowed:  false,
			wantEvidence: "bad",
		},
		{
			name:         "Other term",
			message:      "buy cheap SPAM",
			wantAllowed:  false,
			wantEvidence: "spam",
		},
		{
			name:        "Safe word",
			message:     "good",
			wantAllowed: true,
		},
		{
			name:        "Empty message",
			message:     "",
			wantAllowed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.Process(context.Background(), pipeline.Payload{ScopeID: "7", Text: tt.message})
			assert.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, res.IsAllowed)
			if !tt.wantAllowed {
				assert.Equal(t, domain.RuleBannedTerm, res.Rule)
				assert.Equal(t, tt.wantEvidence, res.Evidence)
				assert.Equal(t, messages.MsgReasonBannedTerm, res.Reason)
			}
		})
	}
}

func TestWordFilter_SeesRuntimeChanges(t *testing.T) {
	terms := bannedterms.New()
	f := NewWordFilter(terms)
	payload := pipeline.Payload{Text: "this is SPAM here"}

	res, _ := f.Process(context.Background(), payload)
	assert.True(t, res.IsAllowed)

	terms.Add("Spam")
	res, _ = f.Process(context.Background(), payload)
	assert.False(t, res.IsAllowed)

	terms.Remove("spam")
	res, _ = f.Process(context.Background(), payload)
	assert.True(t, res.IsAllowed)
}
