package pipeline

import "context"

// Manager runs filters in order and stops at the first one that rejects.
type Manager struct {
	filters []Filter
}

func NewManager(filters ...Filter) *Manager {
	return &Manager{filters: filters}
}

func (m *Manager) Names() []string {
	out := make([]string, len(m.filters))
	for i, f := range m.filters {
		out[i] = f.Name()
	}
	return out
}

func (m *Manager) Process(ctx context.Context, payload Payload) (*Result, error) {
	for _, f := range m.filters {
		res, err := f.Process(ctx, payload)
		if err != nil {
			return nil, err
		}
		if !res.IsAllowed {
			if res.FilterName == "" {
				res.FilterName = f.Name()
			}
			return res, nil
		}
	}
	return &Result{IsAllowed: true}, nil
}
