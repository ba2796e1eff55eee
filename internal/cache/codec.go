package cache

import (
	"fmt"
	"sync"

	"github.com/Borislavv/go-ash-perf/model"
	"github.com/klauspost/compress/zstd"
)

// codec compresses stored payloads losslessly. Encoders are built lazily per
// level and shared: EncodeAll/DecodeAll are safe for concurrent use.
type codec struct {
	mu       sync.Mutex
	encoders map[zstd.EncoderLevel]*zstd.Encoder
	decoder  *zstd.Decoder
}

func newCodec() (*codec, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &codec{encoders: make(map[zstd.EncoderLevel]*zstd.Encoder, 4), decoder: dec}, nil
}

func encoderLevel(level model.CompressionLevel) zstd.EncoderLevel {
	switch level {
	case model.CompressionLow:
		return zstd.SpeedFastest
	case model.CompressionHigh:
		return zstd.SpeedBetterCompression
	case model.CompressionMaximum:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func (c *codec) encoder(level zstd.EncoderLevel) (*zstd.Encoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	c.encoders[level] = enc
	return enc, nil
}

// encode returns the zstd frame when it is smaller than data, otherwise data itself.
func (c *codec) encode(data []byte, level model.CompressionLevel) (payload []byte, compressed bool, err error) {
	enc, err := c.encoder(encoderLevel(level))
	if err != nil {
		return data, false, err
	}
	frame := enc.EncodeAll(data, make([]byte, 0, len(data)))
	if len(frame) >= len(data) {
		return data, false, nil
	}
	return frame, true, nil
}

func (c *codec) decode(payload []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return payload, nil
	}
	data, err := c.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decode zstd payload: %w", err)
	}
	return data, nil
}

func (c *codec) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for level, enc := range c.encoders {
		_ = enc.Close()
		delete(c.encoders, level)
	}
	c.decoder.Close()
}
