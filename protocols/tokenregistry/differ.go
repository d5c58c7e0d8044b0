package tokenregistry

import "github.com/ethereum/go-ethereum/common"

type TokenSystemDiff struct {
	Additions []Token          `json:"additions,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d TokenSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two token lists keyed by address.
// Tokens are immutable once observed, so a token present in both lists is never reported;
// only additions and deletions can occur.
func Differ(old, new []Token) TokenSystemDiff {
	oldTokens := make(map[common.Address]struct{}, len(old))
	for _, token := range old {
		oldTokens[token.Address] = struct{}{}
	}

	newTokens := make(map[common.Address]struct{}, len(new))
	var additions []Token
	for _, token := range new {
		newTokens[token.Address] = struct{}{}
		if _, exists := oldTokens[token.Address]; !exists {
			additions = append(additions, token)
		}
	}

	var deletions []common.Address
	for _, token := range old {
		if _, exists := newTokens[token.Address]; !exists {
			deletions = append(deletions, token.Address)
		}
	}

	return TokenSystemDiff{
		Additions: additions,
		Deletions: deletions,
	}
}
