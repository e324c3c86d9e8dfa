package helium

import (
	"time"

	"github.com/zsl99a/helium/internal/core/endpoint"
)

// Config 运行时配置
type Config struct {
	// Endpoint 传输端点配置（TLS 材料、保活、超时）
	Endpoint *endpoint.Config

	// services 构造期注册的服务，New 返回后冻结
	services map[ServiceName]Handler
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Endpoint: endpoint.DefaultConfig(),
		services: make(map[ServiceName]Handler),
	}
}

// Option 运行时配置选项
type Option func(*Config) error

// WithTLS 设置 PEM 证书材料
//
// ca 是共享 CA 证书，cert/key 是本节点的证书与私钥。
// 证书的签发与分发属于外部协作者，运行时只负责加载。
func WithTLS(caFile, certFile, keyFile string) Option {
	return func(c *Config) error {
		c.Endpoint.CAFile = caFile
		c.Endpoint.CertFile = certFile
		c.Endpoint.KeyFile = keyFile
		return nil
	}
}

// WithServerName 设置拨号时校验的服务端名称，默认 "localhost"
func WithServerName(name string) Option {
	return func(c *Config) error {
		c.Endpoint.ServerName = name
		return nil
	}
}

// WithKeepAlive 设置连接保活间隔
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) error {
		c.Endpoint.KeepAlivePeriod = d
		return nil
	}
}

// WithMaxIdleTimeout 设置连接空闲超时
//
// 它决定对端非优雅断开后，节点记录从注册表消失的最大延迟。
func WithMaxIdleTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.Endpoint.MaxIdleTimeout = d
		return nil
	}
}

// WithService 注册一个服务
//
// 同名重复注册时后者覆盖前者。服务集合在 New 返回后不可变。
// 只拨号不受理流的节点可以一个服务都不注册。
func WithService(name ServiceName, h Handler) Option {
	return func(c *Config) error {
		c.services[name] = h
		return nil
	}
}

// WithServiceFunc 以函数形式注册一个服务
func WithServiceFunc(name ServiceName, f HandlerFunc) Option {
	return func(c *Config) error {
		c.services[name] = f
		return nil
	}
}
