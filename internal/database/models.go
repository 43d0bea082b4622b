package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username     string  `gorm:"uniqueIndex;size:64"`
	PasswordHash string  `gorm:"size:255"`
	Profile      Profile `gorm:"constraint:OnDelete:CASCADE"`
	Cards        []Card  `gorm:"constraint:OnDelete:CASCADE"`
}

// Profile 表示用户的公开主页资料。
// Username 冗余存储，作为公开路由键（/{username}）；Layout 以 JSONB 存储
// 卡片的栅格坐标列表（[{i,x,y,w,h}, ...]），为空表示尚未排版，由归并逻辑补默认值。
type Profile struct {
	gorm.Model
	UserID        uint           `gorm:"uniqueIndex"`
	Username      string         `gorm:"uniqueIndex;size:64"`
	DisplayName   string         `gorm:"size:128"`
	Bio           string         `gorm:"size:1024"`
	AvatarKey     string         `gorm:"size:512"`
	SnapshotKey   string         `gorm:"size:512"`
	Layout        datatypes.JSON `gorm:"type:jsonb"`
	Role          string         `gorm:"size:32;default:free"`
	ShowAnalytics bool           `gorm:"default:false"`
	TrackingID    string         `gorm:"size:64"`
}

// Card 表示主页上的单个内容卡片。
// Type 决定哪些可选字段有意义（note 用 Content，link 用 Link 等），
// 存储层面全部字段始终存在且可空。
type Card struct {
	gorm.Model
	UserID              uint   `gorm:"index"`
	Type                string `gorm:"size:16;index"`
	Title               string `gorm:"size:255"`
	Content             string
	Link                string         `gorm:"size:1024"`
	BackgroundImage     string         `gorm:"size:512"`
	BackgroundColor     *string        `gorm:"size:32"`
	TextColor           *string        `gorm:"size:32"`
	Price               *float64       `gorm:"type:numeric(12,2)"`
	PaymentLink         *string        `gorm:"size:1024"`
	ObscurationSettings datatypes.JSON `gorm:"type:jsonb"` // {"percentage": n}
	OriginalFilePath    *string        `gorm:"size:512"`
	ProcessedFilePath   *string        `gorm:"size:512"`
}
