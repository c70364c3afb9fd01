package geoip

import (
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Resolver 封装 MaxMind 数据库的国家/城市查询，nil 接收者安全
type Resolver struct {
	reader *maxminddb.Reader
}

// Open 加载 MaxMind 数据库文件（GeoLite2-City 格式）
func Open(path string) (*Resolver, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{reader: reader}, nil
}

// Resolve 解析 IP 对应的国家与城市，失败时返回空串（访问记录尽力而为）
func (r *Resolver) Resolve(ip string) (country, city string) {
	if r == nil || r.reader == nil {
		return "", ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ""
	}

	var record struct {
		Country struct {
			Names map[string]string `maxminddb:"names"`
		} `maxminddb:"country"`
		City struct {
			Names map[string]string `maxminddb:"names"`
		} `maxminddb:"city"`
	}
	if err := r.reader.Lookup(parsed, &record); err != nil {
		return "", ""
	}
	return record.Country.Names["en"], record.City.Names["en"]
}

// Close 释放数据库句柄
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
