// Package wire 实现流上的定长分帧与消息编解码
//
// 每条逻辑流都是长度前缀分帧的：4 字节大端长度 + 载荷，
// 单帧上限 4 MiB。载荷采用 CBOR（紧凑的自描述二进制编码）。
// 每条新打开的流上，第一帧永远是协商消息 Negotiate。
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	cbor "github.com/fxamacker/cbor/v2"
)

// MaxFrameLen 单帧最大长度
const MaxFrameLen = 4 << 20 // 4 MiB

// ErrFrameTooLarge 帧长度超过上限
var ErrFrameTooLarge = errors.New("frame exceeds max length")

// CBOR 编解码模式（规范化编码，RFC 8949 core profile）
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Stream 分帧流
//
// 包装一条底层字节流（QUIC 双向流、net.Pipe 等）。
// 写侧由互斥锁保护，可多 goroutine 并发发送；
// 读侧预期只有一个 goroutine。
type Stream struct {
	rwc io.ReadWriteCloser
	br  *bufio.Reader

	wmu sync.Mutex
	bw  *bufio.Writer
}

// NewStream 包装底层字节流
func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{
		rwc: rwc,
		br:  bufio.NewReader(rwc),
		bw:  bufio.NewWriter(rwc),
	}
}

// SendBytes 发送一帧原始字节
func (s *Stream) SendBytes(b []byte) error {
	if len(b) > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(b))
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := s.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := s.bw.Write(b); err != nil {
		return err
	}
	return s.bw.Flush()
}

// RecvBytes 接收下一帧原始字节
//
// 对端关闭流时返回底层的 io.EOF 等错误。
func (s *Stream) RecvBytes() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(s.br, lenbuf[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenbuf[:])
	if n > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// SendMsg 编码并发送一条消息
func (s *Stream) SendMsg(v any) error {
	b, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.SendBytes(b)
}

// RecvMsg 接收并解码下一条消息
func (s *Stream) RecvMsg(v any) error {
	b, err := s.RecvBytes()
	if err != nil {
		return err
	}
	if err := decMode.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Close 关闭底层流
func (s *Stream) Close() error {
	return s.rwc.Close()
}
