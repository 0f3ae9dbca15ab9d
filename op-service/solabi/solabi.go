// Package solabi provides low-level Solidity ABI scalar read/write helpers,
// generalized from the teacher's inline usage in l1_block_info.go into a
// reusable package so the Builder can hand-encode calls to the
// Ethscriptions contract without pulling in a full ABI-JSON binding for
// every method.
package solabi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const wordSize = 32

// WriteSignature writes a 4-byte function selector.
func WriteSignature(w io.Writer, sig []byte) error {
	if len(sig) != 4 {
		return fmt.Errorf("expected 4 byte signature, got %d", len(sig))
	}
	_, err := w.Write(sig)
	return err
}

func writeWord(w io.Writer, b []byte) error {
	var word [wordSize]byte
	copy(word[wordSize-len(b):], b)
	_, err := w.Write(word[:])
	return err
}

func WriteUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return writeWord(w, b[:])
}

func WriteUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return writeWord(w, b[:])
}

func WriteBool(w io.Writer, v bool) error {
	if v {
		return writeWord(w, []byte{1})
	}
	return writeWord(w, []byte{0})
}

func WriteUint256(w io.Writer, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("cannot ABI-encode negative integer %s", v)
	}
	b := v.Bytes()
	if len(b) > wordSize {
		return fmt.Errorf("integer %s overflows 32 bytes", v)
	}
	return writeWord(w, b)
}

func WriteAddress(w io.Writer, addr common.Address) error {
	return writeWord(w, addr[:])
}

func WriteHash(w io.Writer, h common.Hash) error {
	return writeWord(w, h[:])
}

// WriteEthBytes32 writes a raw, already left-padded 32 byte value verbatim.
func WriteEthBytes32(w io.Writer, b [32]byte) error {
	_, err := w.Write(b[:])
	return err
}

// WriteString ABI-encodes a dynamic string value: length word followed by
// the UTF-8 bytes, padded to a word boundary. Callers are responsible for
// writing the offset word that precedes it in the tuple.
func WriteString(w io.Writer, s string) error {
	return WriteBytes(w, []byte(s))
}

// WriteBytes ABI-encodes a dynamic bytes value: length word followed by
// the bytes, padded to a word boundary.
func WriteBytes(w io.Writer, b []byte) error {
	if err := WriteUint64(w, uint64(len(b))); err != nil {
		return err
	}
	padded := make([]byte, ceilToWord(len(b)))
	copy(padded, b)
	_, err := w.Write(padded)
	return err
}

func ceilToWord(n int) int {
	if n%wordSize == 0 {
		return n
	}
	return n + (wordSize - n%wordSize)
}

func ReadAndValidateSignature(r io.Reader, expect []byte) ([]byte, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	if !bytes.Equal(buf, expect) {
		return nil, fmt.Errorf("invalid signature %x, expected %x", buf, expect)
	}
	return buf, nil
}

func readWord(r io.Reader) ([]byte, error) {
	var word [wordSize]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, fmt.Errorf("failed to read word: %w", err)
	}
	return word[:], nil
}

func ReadUint64(r io.Reader) (uint64, error) {
	word, err := readWord(r)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(word[wordSize-8:]), nil
}

func ReadUint32(r io.Reader) (uint32, error) {
	word, err := readWord(r)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(word[wordSize-4:]), nil
}

func ReadBool(r io.Reader) (bool, error) {
	word, err := readWord(r)
	if err != nil {
		return false, err
	}
	return word[wordSize-1] != 0, nil
}

func ReadUint256(r io.Reader) (*big.Int, error) {
	word, err := readWord(r)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(word), nil
}

func ReadAddress(r io.Reader) (common.Address, error) {
	word, err := readWord(r)
	if err != nil {
		return common.Address{}, err
	}
	var addr common.Address
	copy(addr[:], word[wordSize-len(addr):])
	return addr, nil
}

func ReadHash(r io.Reader) (common.Hash, error) {
	word, err := readWord(r)
	if err != nil {
		return common.Hash{}, err
	}
	var h common.Hash
	copy(h[:], word)
	return h, nil
}

func ReadEthBytes32(r io.Reader) ([32]byte, error) {
	word, err := readWord(r)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], word)
	return out, nil
}

// ReadBytes reads a dynamic bytes/string value: a length word followed by
// that many bytes, rounded up to the next word boundary.
func ReadBytes(r io.Reader) ([]byte, error) {
	length, err := ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read length: %w", err)
	}
	padded := make([]byte, ceilToWord(int(length)))
	if _, err := io.ReadFull(r, padded); err != nil {
		return nil, fmt.Errorf("failed to read bytes: %w", err)
	}
	return padded[:length], nil
}

// EmptyReader reports whether the reader has been fully consumed.
func EmptyReader(r io.Reader) bool {
	var b [1]byte
	n, err := r.Read(b[:])
	return n == 0 && err != nil
}
