package state

import "fmt"

// Hot store key namespace. Entity hashes are keyed by decimal id; set keys
// hold decimal ids as members.
const (
	keyPerson    = "person"
	keyFamily    = "family"
	keyVillage   = "village"
	keyTile      = "tile"
	keyTileLands = "tile:lands"

	keyCounts = "counts:global"

	keyTilesWithMales   = "tiles_with_eligible_males"
	keyTilesWithFemales = "tiles_with_eligible_females"
)

func eligibleKey(sex Sex, tileID uint64) string {
	if sex == SexFemale {
		return fmt.Sprintf("eligible:females:tile:%d", tileID)
	}
	return fmt.Sprintf("eligible:males:tile:%d", tileID)
}

func tilesWithEligibleKey(sex Sex) string {
	if sex == SexFemale {
		return keyTilesWithFemales
	}
	return keyTilesWithMales
}

func membershipKey(tileID uint64, chunkIndex int) string {
	return fmt.Sprintf("village:%d:%d:people", tileID, chunkIndex)
}

// membershipPattern matches every village membership set.
const membershipPattern = "village:*:*:people"

func pendingKey(entity, op string) string {
	return fmt.Sprintf("pending:%s:%s", entity, op)
}
