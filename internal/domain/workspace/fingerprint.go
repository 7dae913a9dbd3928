package workspace

import (
	"github.com/bytedance/sonic"

	"github.com/voxwork/voxwork/internal/shared/types"
)

// Fingerprint serializes a tab snapshot for change detection. Two snapshots
// with equal fingerprints are byte-identical on the wire, so re-sending one
// the store already holds is pure waste.
func Fingerprint(tabs []types.Tab) (string, error) {
	data, err := sonic.Marshal(tabs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
