package tokenregistry

import "github.com/ethereum/go-ethereum/common"

// Patcher constructs a new token list by applying a diff to a previous list.
// The previous list is never modified. Surviving tokens keep their relative order and
// additions are appended, so patching is deterministic.
func Patcher(prevState []Token, diff TokenSystemDiff) ([]Token, error) {
	deleted := make(map[common.Address]struct{}, len(diff.Deletions))
	for _, address := range diff.Deletions {
		deleted[address] = struct{}{}
	}

	seen := make(map[common.Address]struct{}, len(prevState)+len(diff.Additions))
	finalState := make([]Token, 0, len(prevState)+len(diff.Additions))
	for _, token := range prevState {
		if _, gone := deleted[token.Address]; gone {
			continue
		}
		seen[token.Address] = struct{}{}
		finalState = append(finalState, token)
	}

	// Token contains no pointer fields, so a value copy is a deep copy.
	for _, token := range diff.Additions {
		if _, exists := seen[token.Address]; exists {
			continue
		}
		seen[token.Address] = struct{}{}
		finalState = append(finalState, token)
	}

	return finalState, nil
}
