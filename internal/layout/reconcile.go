package layout

import (
	"strconv"

	"conectabio/internal/database"
)

// CardKey 返回卡片在布局中的键（ID 的十进制字符串）。
func CardKey(cardID uint) string {
	return strconv.FormatUint(uint64(cardID), 10)
}

// Reconcile 把持久化布局与当前卡片集合归并成完整的布局：
// 每张卡片恰好一条 Placement，顺序与卡片集合一致；
// 持久化项缺失的数值子字段按类型默认值回填；
// 没有持久化项的卡片合成默认位置（行号为 AppendRow 哨兵）；
// 持久化布局中找不到对应卡片的孤儿项被静默丢弃。
// 纯函数：不修改输入，相同输入（含卡片顺序）产出相同结果。
func Reconcile(cards []database.Card, saved []SavedPlacement) []Placement {
	byKey := make(map[string]SavedPlacement, len(saved))
	for _, sp := range saved {
		if sp.I == "" {
			continue
		}
		byKey[sp.I] = sp
	}

	out := make([]Placement, 0, len(cards))
	for ordinal, card := range cards {
		key := CardKey(card.ID)
		cardType, ok := ParseCardType(card.Type)
		if !ok {
			cardType = CardNote
		}

		if sp, found := byKey[key]; found {
			out = append(out, fillSaved(key, cardType, ordinal, sp))
			continue
		}
		out = append(out, synthesize(key, cardType, ordinal))
	}
	return out
}

// fillSaved 使用持久化值，缺失的子字段按类型默认回填。
// 已持久化的小数高度原样保留，不做类型相关的取整。
func fillSaved(key string, t CardType, ordinal int, sp SavedPlacement) Placement {
	def := synthesize(key, t, ordinal)
	p := def
	if sp.X != nil {
		p.X = *sp.X
	}
	if sp.Y != nil {
		p.Y = *sp.Y
	}
	if sp.W != nil {
		p.W = *sp.W
	}
	if sp.H != nil {
		p.H = *sp.H
	}
	return p
}

// synthesize 为无持久化坐标的卡片合成默认 Placement。
// 横向位置由固定列数和卡片序号推出；纵向使用 AppendRow 哨兵，
// 由渲染端的装箱逻辑落到现有内容之下。
func synthesize(key string, t CardType, ordinal int) Placement {
	size := DefaultSize(t)

	span := int(size.W)
	if float64(span) < size.W {
		span++
	}
	if span < 1 {
		span = 1
	}
	if span > Columns {
		span = Columns
	}

	perRow := Columns / span
	if perRow < 1 {
		perRow = 1
	}
	x := (ordinal % perRow) * span

	return Placement{
		I: key,
		X: x,
		Y: AppendRow,
		W: size.W,
		H: size.H,
	}
}

// RemoveFromLayout 返回删除某张卡片后的布局（不修改输入）。
// 用于卡片删除的级联：卡片行与布局项一并移除。
func RemoveFromLayout(saved []SavedPlacement, cardID uint) []SavedPlacement {
	key := CardKey(cardID)
	out := make([]SavedPlacement, 0, len(saved))
	for _, sp := range saved {
		if sp.I == key {
			continue
		}
		out = append(out, sp)
	}
	return out
}
