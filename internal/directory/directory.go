// Package directory 解析用户身份与钱包地址
package directory

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrWalletNotFound = errors.New("wallet not found")
)

// Identity 用户身份
type Identity struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
}

// Directory 用户与钱包目录
type Directory interface {
	ResolveUser(ctx context.Context, name string) (*Identity, error)
	ResolveWallet(ctx context.Context, name string) (string, error)
}

// UserEntry 配置中的用户
type UserEntry struct {
	Name   string   `yaml:"name" json:"name"`
	Groups []string `yaml:"groups" json:"groups"`
}

// WalletEntry 配置中的钱包
type WalletEntry struct {
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address"`
}

// StaticDirectory 基于配置的只读目录，名称匹配忽略大小写
type StaticDirectory struct {
	users   map[string]*Identity
	wallets map[string]string
}

// NewStaticDirectory 创建静态目录
func NewStaticDirectory(users []UserEntry, wallets []WalletEntry) *StaticDirectory {
	d := &StaticDirectory{
		users:   make(map[string]*Identity, len(users)),
		wallets: make(map[string]string, len(wallets)),
	}
	for _, u := range users {
		d.users[normalize(u.Name)] = &Identity{
			Name:   strings.TrimSpace(u.Name),
			Groups: append([]string(nil), u.Groups...),
		}
	}
	for _, w := range wallets {
		d.wallets[normalize(w.Name)] = w.Address
	}
	return d
}

// ResolveUser 根据名称解析用户
func (d *StaticDirectory) ResolveUser(_ context.Context, name string) (*Identity, error) {
	id, ok := d.users[normalize(name)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &Identity{Name: id.Name, Groups: append([]string(nil), id.Groups...)}, nil
}

// ResolveWallet 根据名称解析钱包地址
func (d *StaticDirectory) ResolveWallet(_ context.Context, name string) (string, error) {
	addr, ok := d.wallets[normalize(name)]
	if !ok {
		return "", ErrWalletNotFound
	}
	return addr, nil
}

// HasGroup 是否存在某个分组
func (d *StaticDirectory) HasGroup(group string) bool {
	g := normalize(group)
	for _, u := range d.users {
		for _, ug := range u.Groups {
			if normalize(ug) == g {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
