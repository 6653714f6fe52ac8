// Package deck はオラクルカードのカタログとシャッフルエンジンを提供する。
package deck

import "github.com/hitoshi/kiaora/internal/model"

// catalog は22枚のオラクルカードの定義順カタログ。
// この宣言順がシャッフルの初期順序となる。
var catalog = []model.Card{
	{Name: "Mana", Meaning: "Personal power and spiritual authority", Image: "/images/cards/mana.jpg"},
	{Name: "Wairua", Meaning: "Spirit and soul connection", Image: "/images/cards/wairua.jpg"},
	{Name: "Aroha", Meaning: "Love, compassion, and empathy", Image: "/images/cards/aroha.jpg"},
	{Name: "Kaitiakitanga", Meaning: "Guardianship and protection of sacred energy", Image: "/images/cards/kaitiakitanga.jpg"},
	{Name: "Whakapapa", Meaning: "Ancestral connections and lineage wisdom", Image: "/images/cards/whakapapa.jpg"},
	{Name: "Mauri", Meaning: "Life force and vital essence", Image: "/images/cards/mauri.jpg"},
	{Name: "Tapu", Meaning: "Sacred restrictions and spiritual boundaries", Image: "/images/cards/tapu.jpg"},
	{Name: "Manaakitanga", Meaning: "Hospitality, kindness, and support", Image: "/images/cards/manaakitanga.jpg"},
	{Name: "Whanaungatanga", Meaning: "Relationships and community bonds", Image: "/images/cards/whanaungatanga.jpg"},
	{Name: "Rangimarie", Meaning: "Peace and tranquility", Image: "/images/cards/rangimarie.jpg"},
	{Name: "Ihi", Meaning: "Spiritual power and psychic force", Image: "/images/cards/ihi.jpg"},
	{Name: "Wehi", Meaning: "Awe and reverence for the divine", Image: "/images/cards/wehi.jpg"},
	{Name: "Tikanga", Meaning: "Right way of doing things and proper protocols", Image: "/images/cards/tikanga.jpg"},
	{Name: "Rahui", Meaning: "Conservation and balanced resource management", Image: "/images/cards/rahui.jpg"},
	{Name: "Whakairo", Meaning: "Creative expression and artistic purpose", Image: "/images/cards/whakairo.jpg"},
	{Name: "Karakia", Meaning: "Prayer and spiritual incantation", Image: "/images/cards/karakia.jpg"},
	{Name: "Tangaroa", Meaning: "Ocean wisdom and emotional depths", Image: "/images/cards/tangaroa.jpg"},
	{Name: "Tane Mahuta", Meaning: "Forest energy and natural growth", Image: "/images/cards/tane-mahuta.jpg"},
	{Name: "Tumatauenga", Meaning: "Courage and strategic action", Image: "/images/cards/tumatauenga.jpg"},
	{Name: "Rongo", Meaning: "Peace and agricultural abundance", Image: "/images/cards/rongo.jpg"},
	{Name: "Haumia", Meaning: "Wild food energy and uncultivated potential", Image: "/images/cards/haumia.jpg"},
	{Name: "Ruaumoko", Meaning: "Change, transformation, and renewal", Image: "/images/cards/ruaumoko.jpg"},
}

// Size はカタログの枚数。
const Size = 22

// Catalog はカタログ全体のコピーを宣言順で返す。
func Catalog() []model.Card {
	out := make([]model.Card, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup はカード名でカタログを検索する。見つからない場合はnilを返す。
func Lookup(name string) *model.Card {
	for i := range catalog {
		if catalog[i].Name == name {
			c := catalog[i]
			return &c
		}
	}
	return nil
}
