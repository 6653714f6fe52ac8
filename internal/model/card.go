// Package model はドメインモデルを定義する。
package model

// Card はオラクルカード1枚を表す。
// カタログは不変であり、Name はカタログ内で一意である。
type Card struct {
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
	Image   string `json:"image"`
}
