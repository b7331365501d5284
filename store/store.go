// Package store 提供 core.Store 的实现：内存、SQLite 与 Redis。
//
// 接口定义在 core 包：
//
//	var s core.Store = store.NewMemoryStore()
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rushteam/receval/core"
)

// 存储类型
const (
	TypeNone   = "none"
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// Config 是生成结果缓存的存储配置。
type Config struct {
	Type   string `yaml:"type"`
	Addr   string `yaml:"addr"`   // redis 地址
	DB     int    `yaml:"db"`     // redis db
	Path   string `yaml:"path"`   // sqlite 文件路径
	Prefix string `yaml:"prefix"` // redis key 前缀
	TTL    int    `yaml:"ttl"`    // 秒，0 表示不过期
}

// Types 返回支持的存储类型。
func Types() []string {
	return []string{TypeNone, TypeMemory, TypeSQLite, TypeRedis}
}

// Validate 校验配置。
func (c Config) Validate() error {
	switch strings.ToLower(c.Type) {
	case "", TypeNone, TypeMemory:
		return nil
	case TypeSQLite:
		if c.Path == "" {
			return core.NewConfigError(core.ModuleStore, "store: sqlite cache requires path")
		}
		return nil
	case TypeRedis:
		if c.Addr == "" {
			return core.NewConfigError(core.ModuleStore, "store: redis cache requires addr")
		}
		return nil
	}
	return core.NewConfigError(core.ModuleStore,
		fmt.Sprintf("store: unknown cache type %q (supported: %v)", c.Type, Types()))
}

// New 按配置创建 Store；类型为空或 none 时返回 nil, nil。
func New(ctx context.Context, c Config) (core.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(c.Type) {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeSQLite:
		s, err := NewSQLiteStore(ctx, c.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeRedis:
		s, err := NewRedisStore(ctx, c.Addr, c.DB, c.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}
