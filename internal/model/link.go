package model

// Link 短链接映射模型，code 为主键，时间戳统一使用 Unix 秒
type Link struct {
	Code        string `gorm:"primaryKey;size:32" json:"code"`
	OriginalURL string `gorm:"type:text;not null" json:"original_url"`
	ExpiresAt   int64  `gorm:"not null;index" json:"expires_at"`
	CreatedAt   int64  `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (Link) TableName() string {
	return "links"
}

// Live 判断链接在给定时刻是否仍然有效
func (l *Link) Live(now int64) bool {
	return l.ExpiresAt > now
}
