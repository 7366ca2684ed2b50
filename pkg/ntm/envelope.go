package ntm

import (
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Envelope layout: magic, version u16, flags u16, salt, nonce, payload
// length u64, payload. The header is authenticated as GCM additional data
// when the payload is encrypted.
const (
	envelopeMagic   = "NTM_SECURE_ENVELOPE"
	envelopeVersion = uint16(1)
	flagCompressed  = uint16(1 << 0)
	flagEncrypted   = uint16(1 << 1)
	saltSize        = 16
	nonceSize       = 12
	envelopeHdrSize = len(envelopeMagic) + 2 + 2 + saltSize + nonceSize + 8
	kdfIterations   = 200000
	keySize         = 32
)

type EncryptionOptions struct {
	Enabled  bool
	Password string
}

type EnvelopeInfo struct {
	Wrapped    bool
	Compressed bool
	Encrypted  bool
	Version    uint16
}

type envelopeHeader struct {
	version uint16
	flags   uint16
	salt    [saltSize]byte
	nonce   [nonceSize]byte
	length  uint64
}

func (h *envelopeHeader) marshal() []byte {
	out := make([]byte, 0, envelopeHdrSize)
	out = append(out, envelopeMagic...)
	out = binary.LittleEndian.AppendUint16(out, h.version)
	out = binary.LittleEndian.AppendUint16(out, h.flags)
	out = append(out, h.salt[:]...)
	out = append(out, h.nonce[:]...)
	return binary.LittleEndian.AppendUint64(out, h.length)
}

func parseEnvelopeHeader(b []byte) (envelopeHeader, error) {
	var h envelopeHeader
	if len(b) < envelopeHdrSize {
		return h, ErrInvalidSecureFile
	}
	p := len(envelopeMagic)
	h.version = binary.LittleEndian.Uint16(b[p:])
	if h.version != envelopeVersion {
		return h, fmt.Errorf("%w: envelope version %d", ErrUnsupportedVer, h.version)
	}
	h.flags = binary.LittleEndian.Uint16(b[p+2:])
	p += 4
	p += copy(h.salt[:], b[p:])
	p += copy(h.nonce[:], b[p:])
	h.length = binary.LittleEndian.Uint64(b[p:])
	return h, nil
}

func (h envelopeHeader) info() EnvelopeInfo {
	return EnvelopeInfo{
		Wrapped:    true,
		Compressed: h.flags&flagCompressed != 0,
		Encrypted:  h.flags&flagEncrypted != 0,
		Version:    h.version,
	}
}

// InspectEnvelope reports how the file at path is wrapped without
// decrypting it. Bare containers report Wrapped == false.
func InspectEnvelope(path string) (EnvelopeInfo, error) {
	b, err := os.ReadFile(ResolveExisting(path))
	if err != nil {
		return EnvelopeInfo{}, ioFailure("read", path, err)
	}
	if !hasEnvelope(b) {
		return EnvelopeInfo{}, nil
	}
	h, err := parseEnvelopeHeader(b)
	if err != nil {
		return EnvelopeInfo{}, err
	}
	return h.info(), nil
}

func hasEnvelope(b []byte) bool {
	return bytes.HasPrefix(b, []byte(envelopeMagic))
}

func sealEnvelope(container []byte, opts SaveOptions) ([]byte, error) {
	h := envelopeHeader{version: envelopeVersion}
	payload := container
	if opts.Compression {
		h.flags |= flagCompressed
		var err error
		if payload, err = deflate(payload); err != nil {
			return nil, err
		}
	}
	if !opts.Encryption.Enabled {
		h.length = uint64(len(payload))
		return append(h.marshal(), payload...), nil
	}

	h.flags |= flagEncrypted
	if _, err := io.ReadFull(rand.Reader, h.salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, h.nonce[:]); err != nil {
		return nil, err
	}
	aead, err := passwordAEAD(opts.Encryption.Password, h.salt[:])
	if err != nil {
		return nil, err
	}
	h.length = uint64(len(payload) + aead.Overhead())
	hdr := h.marshal()
	return aead.Seal(bytes.Clone(hdr), h.nonce[:], payload, hdr), nil
}

func openEnvelope(b []byte, opts LoadOptions) ([]byte, error) {
	h, err := parseEnvelopeHeader(b)
	if err != nil {
		return nil, err
	}
	hdr, payload := b[:envelopeHdrSize], b[envelopeHdrSize:]
	if uint64(len(payload)) != h.length {
		return nil, ErrInvalidSecureFile
	}
	info := h.info()
	if info.Encrypted {
		if strings.TrimSpace(opts.Password) == "" {
			return nil, ErrPasswordRequired
		}
		aead, err := passwordAEAD(opts.Password, h.salt[:])
		if err != nil {
			return nil, err
		}
		if payload, err = aead.Open(nil, h.nonce[:], payload, hdr); err != nil {
			return nil, ErrInvalidPassword
		}
	}
	if info.Compressed {
		if payload, err = inflate(payload); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSecureFile, err)
		}
	}
	return bytes.Clone(payload), nil
}

func passwordAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func deflate(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(in); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(in []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
