package layout

import (
	"encoding/json"
	"fmt"
)

// CardType 是卡片的类型标签，决定默认尺寸与哪些字段有意义。
type CardType string

const (
	CardTitle    CardType = "title"
	CardLink     CardType = "link"
	CardNote     CardType = "note"
	CardImage    CardType = "image"
	CardMap      CardType = "map"
	CardDocument CardType = "document"
)

// ParseCardType 校验类型标签是否合法。
func ParseCardType(s string) (CardType, bool) {
	switch t := CardType(s); t {
	case CardTitle, CardLink, CardNote, CardImage, CardMap, CardDocument:
		return t, true
	default:
		return "", false
	}
}

// DefaultTitle 返回新建卡片的标题占位文案。
func (t CardType) DefaultTitle() string {
	return "New " + string(t)
}

// Columns 栅格固定列数（编辑模式）。
const Columns = 4

// AppendRow 是"排在现有内容之后"的行号哨兵：归并逻辑不知道已占用的
// 最大行号，渲染端把任何 >= AppendRow 的行视为追加。序列化为普通整数，
// 避免 JSON 无法表达 Infinity。
const AppendRow = 1 << 30

// Placement 是某张卡片在栅格中的位置与尺寸（栅格单元计）。
// I 是卡片 ID 的十进制字符串；H/W 允许小数（公开视图的标题行）。
type Placement struct {
	I string  `json:"i"`
	X int     `json:"x"`
	Y int     `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// SavedPlacement 是持久化布局中的一项。子字段用指针区分"缺失"与 0，
// 缺失的数值在归并时按类型默认值回填。
type SavedPlacement struct {
	I string   `json:"i"`
	X *int     `json:"x"`
	Y *int     `json:"y"`
	W *float64 `json:"w"`
	H *float64 `json:"h"`
}

// Size 默认宽高（栅格单元）。
type Size struct {
	W float64
	H float64
}

// DefaultSize 返回类型对应的默认尺寸：标题/链接整行矮条，笔记窄高，
// 图片方块，地图大方块。document 与 note 同款（窄高，带购买入口渲染）。
func DefaultSize(t CardType) Size {
	switch t {
	case CardTitle, CardLink:
		return Size{W: Columns, H: 1}
	case CardNote, CardDocument:
		return Size{W: 1, H: 2}
	case CardImage:
		return Size{W: 2, H: 2}
	case CardMap:
		return Size{W: Columns, H: 4}
	default:
		return Size{W: 1, H: 2}
	}
}

// ParseLayout 解码 Profile.Layout 的 JSONB 内容。空输入视为无布局。
func ParseLayout(raw []byte) ([]SavedPlacement, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var saved []SavedPlacement
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	return saved, nil
}

// MarshalLayout 编码布局用于持久化。
func MarshalLayout(placements []Placement) ([]byte, error) {
	data, err := json.Marshal(placements)
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	return data, nil
}

// MarshalSavedLayout 重新编码持久化布局（摘除条目后回写用）。
func MarshalSavedLayout(saved []SavedPlacement) ([]byte, error) {
	data, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	return data, nil
}
