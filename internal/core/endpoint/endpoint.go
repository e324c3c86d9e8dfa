// Package endpoint 实现基于 QUIC 的 mTLS 传输端点
//
// 端点同时负责出站拨号与入站监听，双方都出示由共享 CA 签发
// 的证书（双向认证），服务端身份按名称校验。监听与拨号复用
// 同一个 UDP socket 和 quic.Transport。
package endpoint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"
)

// alpnProtocol 握手协商的应用层协议标识
const alpnProtocol = "helium/1"

var (
	// ErrClosed 端点已关闭
	ErrClosed = errors.New("endpoint closed")

	// ErrNoTLS 缺少 TLS 证书材料
	ErrNoTLS = errors.New("missing TLS material")
)

// Config 端点配置
//
// 证书与密钥以 PEM 文件提供；签发与分发是外部协作者的职责。
type Config struct {
	// CAFile 共享 CA 证书，用于校验对端
	CAFile string

	// CertFile/KeyFile 本节点证书与私钥
	CertFile string
	KeyFile  string

	// ServerName 拨号时校验的服务端名称
	ServerName string

	// KeepAlivePeriod 连接保活间隔
	KeepAlivePeriod time.Duration

	// MaxIdleTimeout 连接空闲超时
	// 决定对端非优雅断开的最大检测延迟
	MaxIdleTimeout time.Duration

	// MaxIncomingStreams 单连接最大入站流数
	MaxIncomingStreams int64
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServerName:         "localhost",
		KeepAlivePeriod:    3 * time.Second,
		MaxIdleTimeout:     10 * time.Second,
		MaxIncomingStreams: 1024,
	}
}

// Endpoint mTLS QUIC 端点
type Endpoint struct {
	mu sync.Mutex

	serverTLS *tls.Config
	clientTLS *tls.Config
	quicConf  *quic.Config

	// 共享的 UDP socket 与 quic.Transport：
	// 首个需要 socket 的调用（Listen 或 Dial）完成绑定
	udpConn       *net.UDPConn
	quicTransport *quic.Transport

	closed bool
}

// New 创建端点并加载 TLS 材料
func New(cfg *Config) (*Endpoint, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CAFile == "" || cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, ErrNoTLS
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("加载节点证书失败: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("读取 CA 证书失败: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: CA 证书无法解析", ErrNoTLS)
	}

	serverName := cfg.ServerName
	if serverName == "" {
		serverName = "localhost"
	}

	return &Endpoint{
		serverTLS: &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientCAs:    pool,
			ClientAuth:   tls.RequireAndVerifyClientCert,
			MinVersion:   tls.VersionTLS13,
			NextProtos:   []string{alpnProtocol},
		},
		clientTLS: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			ServerName:   serverName,
			MinVersion:   tls.VersionTLS13,
			NextProtos:   []string{alpnProtocol},
		},
		quicConf: &quic.Config{
			KeepAlivePeriod:    cfg.KeepAlivePeriod,
			MaxIdleTimeout:     cfg.MaxIdleTimeout,
			MaxIncomingStreams: cfg.MaxIncomingStreams,
		},
	}, nil
}

// transport 返回共享的 quic.Transport，必要时绑定 socket
//
// bindAddr 为空时绑定随机端口（拨号场景）。
func (e *Endpoint) transport(bindAddr string) (*quic.Transport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}

	if e.quicTransport == nil {
		laddr := &net.UDPAddr{}
		if bindAddr != "" {
			udpAddr, err := net.ResolveUDPAddr("udp", bindAddr)
			if err != nil {
				return nil, fmt.Errorf("解析监听地址失败: %w", err)
			}
			laddr = udpAddr
		}
		conn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("绑定 UDP socket 失败: %w", err)
		}
		e.udpConn = conn
		e.quicTransport = &quic.Transport{Conn: conn}
	}

	return e.quicTransport, nil
}

// Dial 拨号建立出站连接
//
// 完成 mTLS 握手并按 ServerName 校验服务端身份，
// 保活由 quic.Config 的 KeepAlivePeriod 启用。
func (e *Endpoint) Dial(ctx context.Context, addr string) (*quic.Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("解析对端地址失败: %w", err)
	}

	tr, err := e.transport("")
	if err != nil {
		return nil, err
	}

	conn, err := tr.Dial(ctx, udpAddr, e.clientTLS, e.quicConf)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// Listen 在地址上监听入站连接
//
// 共享 socket 只绑定一次：先 Dial 后 Listen 时沿用已绑定的
// 随机端口。
func (e *Endpoint) Listen(addr string) (*quic.Listener, error) {
	tr, err := e.transport(addr)
	if err != nil {
		return nil, err
	}

	ln, err := tr.Listen(e.serverTLS, e.quicConf)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

// Addr 返回本地 socket 地址，未绑定时为 nil
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.udpConn == nil {
		return nil
	}
	return e.udpConn.LocalAddr()
}

// Close 关闭端点
//
// 关闭共享的 quic.Transport（连带其上所有连接）与 UDP socket。
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	if e.quicTransport != nil {
		err = multierr.Append(err, e.quicTransport.Close())
		e.quicTransport = nil
	}
	if e.udpConn != nil {
		err = multierr.Append(err, e.udpConn.Close())
		e.udpConn = nil
	}
	return err
}
