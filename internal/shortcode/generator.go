package shortcode

import (
	"crypto/rand"
	"math/big"
)

const (
	// Charset 包含用于生成短码的所有字符
	Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength 是生成的短码的长度
	CodeLength = 6
)

var charsetLen = big.NewInt(int64(len(Charset)))

// Generator 负责提议随机短码。它不保证唯一性：
// 冲突由上层借助存储的唯一约束重试处理。
type Generator struct{}

// NewGenerator 创建一个新的短码生成器实例
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate 使用加密安全的随机数生成一个候选短码
func (g *Generator) Generate() (string, error) {
	b := make([]byte, CodeLength)
	for i := range b {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		b[i] = Charset[num.Int64()]
	}
	return string(b), nil
}
