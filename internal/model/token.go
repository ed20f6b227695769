package model

// DefaultDenom is the denomination factor used when an upstream omits it.
const DefaultDenom int64 = 1000

// TokenMetadata identifies a CAT and carries its descriptive fields.
type TokenMetadata struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	IconURL string `json:"icon"`
	Denom   int64  `json:"denom"`
}

// DenomOrDefault returns Denom, or DefaultDenom when it is not positive.
func (t TokenMetadata) DenomOrDefault() int64 {
	if t.Denom <= 0 {
		return DefaultDenom
	}
	return t.Denom
}
