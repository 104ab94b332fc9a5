package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// AssetHash is the content key of an asset: hex SHA-256 of "TYPE:text". Text is
// hashed as-is so that differently cased copies stay distinct.
func AssetHash(typ AssetType, text string) string {
	sum := sha256.Sum256([]byte(string(typ) + ":" + text))
	return hex.EncodeToString(sum[:])
}

// StampHashes fills the content hash of every asset in the group that has none.
func (g *AdGroup) StampHashes() {
	for _, list := range [][]Asset{g.Headlines, g.Descriptions} {
		for i := range list {
			if list[i].Hash == "" {
				list[i].Hash = AssetHash(list[i].Type, list[i].Text)
			}
		}
	}
}
