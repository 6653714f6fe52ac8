package deck

import (
	"math/rand/v2"
	"sync"

	"github.com/hitoshi/kiaora/internal/model"
)

// Shuffler はオラクルカードのシャッフルエンジン。
// 乱数源を注入可能にすることで、シードを固定した再現性のあるテストができる。
// *rand.Randはゴルーチンセーフではないため、乱数源の利用は内部ミューテックスで
// 直列化する。1つのShufflerを複数ゴルーチンから共有してよい。
type Shuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewShuffler はグローバル乱数源からシードしたShufflerを生成する。
func NewShuffler() *Shuffler {
	return NewShufflerWithSource(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewShufflerWithSource は指定された乱数源を使用するShufflerを生成する。
func NewShufflerWithSource(rng *rand.Rand) *Shuffler {
	return &Shuffler{rng: rng}
}

// Shuffle は伝統的な三山カット込みのシャッフルを行い、全22枚の並べ替えを返す。
//
// 手順:
//  1. 宣言順カタログのコピーから開始する。
//  2. Fisher-Yatesシャッフル（末尾から順に[0,i]の一様乱択と交換）。
//  3. 先頭から floor(n/3), floor(n/3), 残り の3山に分割する（22枚では7,7,8）。
//  4. 山3・山1・山2の順に重ね直す。
//  5. [0,n)の一様乱択位置で最後のカットを行う。
//
// 手順2の時点で並びは一様なので、3-5の決定的な並べ替えと一様な最終カットを
// 経ても、先頭1枚の分布は22枚に対して一様なまま保たれる。
func (s *Shuffler) Shuffle() []model.Card {
	cards := Catalog()

	// 乱数源の利用区間のみ直列化する
	s.mu.Lock()
	// Fisher-Yates
	for i := len(cards) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
	cut := s.rng.IntN(len(cards))
	s.mu.Unlock()

	// 三山に分割して、山3・山1・山2の順に重ね直す
	pileSize := len(cards) / 3
	pile1 := cards[:pileSize]
	pile2 := cards[pileSize : pileSize*2]
	pile3 := cards[pileSize*2:]

	stacked := make([]model.Card, 0, len(cards))
	stacked = append(stacked, pile3...)
	stacked = append(stacked, pile1...)
	stacked = append(stacked, pile2...)

	// 最後のカット
	result := make([]model.Card, 0, len(stacked))
	result = append(result, stacked[cut:]...)
	result = append(result, stacked[:cut]...)

	return result
}

// Draw は新しいシャッフルを行い、先頭の1枚を返す。
func (s *Shuffler) Draw() model.Card {
	return s.Shuffle()[0]
}

// DrawSingle はシャッフルの儀式を経ずに、カタログから一様乱択で1枚を返す。
func (s *Shuffler) DrawSingle() model.Card {
	s.mu.Lock()
	i := s.rng.IntN(len(catalog))
	s.mu.Unlock()
	return catalog[i]
}
