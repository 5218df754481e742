package model

type Provider struct {
	ID         string
	Name       string
	Disabled   bool
	FallbackID *string // next provider to try when this one fails
	ParentID   *string // sub-route within one upstream, nil for top-level
	Order      int
	Pooled     bool     // true when calls go through the shared account pool
	Models     []string // model names this provider serves
}

// SupportsModel reports whether the provider is configured for the model.
func (p *Provider) SupportsModel(model string) bool {
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}
