package validate

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MinTTLSeconds TTL 下限（5 分钟）
	MinTTLSeconds int64 = 300
	// MaxTTLSeconds TTL 上限（30 天）
	MaxTTLSeconds int64 = 30 * 24 * 60 * 60
	// DefaultTTLSeconds 未指定 TTL 时的默认值（7 天）
	DefaultTTLSeconds int64 = 7 * 24 * 60 * 60
	// MaxCodeLength 短码最大长度
	MaxCodeLength = 32
)

var (
	ErrURLFormat   = errors.New("URL 格式无效")
	ErrURLScheme   = errors.New("URL 仅支持 http/https 协议")
	ErrURLLoopback = errors.New("URL 不允许指向本机地址")

	ErrCodeEmpty   = errors.New("短码不能为空")
	ErrCodeTooLong = errors.New("短码不能超过 32 个字符")
	ErrCodeChars   = errors.New("短码仅允许字母、数字、连字符和下划线")

	ErrTTLFormat   = errors.New("TTL 格式无效，应为 <数字><单位>，单位可选 s/m/h/d")
	ErrTTLTooShort = errors.New("TTL 不能小于 300 秒（5 分钟）")
	ErrTTLTooLong  = errors.New("TTL 不能超过 2592000 秒（30 天）")
)

var codeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// 所有输入校验类错误，供边界层统一映射为客户端错误
var inputErrors = []error{
	ErrURLFormat, ErrURLScheme, ErrURLLoopback,
	ErrCodeEmpty, ErrCodeTooLong, ErrCodeChars,
	ErrTTLFormat, ErrTTLTooShort, ErrTTLTooLong,
}

// IsInputError 判断错误是否由非法输入引起（客户端错误，不应重试）
func IsInputError(err error) bool {
	for _, e := range inputErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// URL 校验目标地址：必须是绝对的 http/https URL，且不得指向回环地址
func URL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrURLFormat
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLFormat, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrURLScheme
	}
	host := parsed.Hostname()
	if host == "" {
		return ErrURLFormat
	}
	if isLoopbackHost(host) {
		return ErrURLLoopback
	}
	return nil
}

// isLoopbackHost 识别 localhost、127.0.0.0/8 以及 IPv6 ::1
func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// Code 校验自定义短码：1-32 个字符，字母数字连字符下划线
func Code(code string) error {
	if code == "" {
		return ErrCodeEmpty
	}
	if len(code) > MaxCodeLength {
		return ErrCodeTooLong
	}
	if !codeRe.MatchString(code) {
		return ErrCodeChars
	}
	return nil
}

// TTL 解析存活时长并换算为秒，空串返回默认值
// 边界刻意保留原有行为："299s" 低于下限被拒绝，"300s" 通过。
func TTL(ttl string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(ttl))
	if s == "" {
		return DefaultTTLSeconds, nil
	}
	if len(s) < 2 {
		return 0, ErrTTLFormat
	}

	numStr, unit := s[:len(s)-1], s[len(s)-1]
	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrTTLFormat, ttl)
	}

	var seconds int64
	switch unit {
	case 's':
		seconds = num
	case 'm':
		seconds = num * 60
	case 'h':
		seconds = num * 60 * 60
	case 'd':
		seconds = num * 24 * 60 * 60
	default:
		return 0, fmt.Errorf("%w: 未知单位 %q", ErrTTLFormat, string(unit))
	}

	if seconds < MinTTLSeconds {
		return 0, ErrTTLTooShort
	}
	if seconds > MaxTTLSeconds {
		return 0, ErrTTLTooLong
	}
	return seconds, nil
}
