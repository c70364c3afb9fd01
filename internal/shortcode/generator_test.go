package shortcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLengthAndCharset(t *testing.T) {
	g := NewGenerator()
	for i := 0; i < 100; i++ {
		code, err := g.Generate()
		assert.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(Charset, c), "短码包含非法字符: %q", c)
		}
	}
}

func TestGenerateIndependence(t *testing.T) {
	// 62^6 的空间下连续生成大量重复的概率可以忽略不计
	g := NewGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := g.Generate()
		assert.NoError(t, err)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 990, "生成结果应几乎全部互不相同")
}
