// Package codec holds the pluggable compression and encryption strategies
// the persistent and distributed tiers run serialized entries through:
// compress then encrypt on write, decrypt then decompress on read.
package codec

import (
	"fmt"

	"github.com/stratacache/go-strata-cache/internal/cacheerrs"
)

type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type Encryptor interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// Pipeline applies the configured strategies in the fixed order.
// A nil strategy is a pass-through.
type Pipeline struct {
	Compressor Compressor
	Encryptor  Encryptor
}

func (p Pipeline) Encode(data []byte) ([]byte, error) {
	var err error
	if p.Compressor != nil {
		if data, err = p.Compressor.Compress(data); err != nil {
			return nil, fmt.Errorf("compress entry: %w", err)
		}
	}
	if p.Encryptor != nil {
		if data, err = p.Encryptor.Encrypt(data); err != nil {
			return nil, fmt.Errorf("encrypt entry: %w", err)
		}
	}
	return data, nil
}

// Decode reverses Encode. Any failure means the stored bytes cannot be the
// data that was written and surfaces as a corruption error.
func (p Pipeline) Decode(data []byte) ([]byte, error) {
	var err error
	if p.Encryptor != nil {
		if data, err = p.Encryptor.Decrypt(data); err != nil {
			return nil, fmt.Errorf("%w: decrypt: %v", cacheerrs.ErrCorrupted, err)
		}
	}
	if p.Compressor != nil {
		if data, err = p.Compressor.Decompress(data); err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", cacheerrs.ErrCorrupted, err)
		}
	}
	return data, nil
}
