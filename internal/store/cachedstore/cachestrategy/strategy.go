// Package cachestrategy defines cache eviction strategy interfaces.
package cachestrategy

import "github.com/discochess/movegrade/internal/game"

// Strategy holds cached games and decides which to evict.
type Strategy interface {
	Get(key string) (*game.Game, bool)
	Add(key string, value *game.Game) bool
	Len() int
}
