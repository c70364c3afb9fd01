package model

// Visit 访问记录，仅追加写入，随所属链接级联删除
type Visit struct {
	ID        uint   `gorm:"primarykey" json:"-"`
	Code      string `gorm:"size:32;not null;index" json:"code"`
	VisitedAt int64  `gorm:"not null;index" json:"visited_at"`
	IP        string `gorm:"size:45" json:"ip,omitempty"`
	Country   string `gorm:"size:100" json:"country,omitempty"`
	City      string `gorm:"size:100" json:"city,omitempty"`
	UserAgent string `gorm:"type:text" json:"user_agent,omitempty"`
	Referer   string `gorm:"type:text" json:"referer,omitempty"`
}

func (Visit) TableName() string {
	return "visits"
}
