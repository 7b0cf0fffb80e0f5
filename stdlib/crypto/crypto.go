// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package crypto provides the cryptographic intrinsics backing the XL
// virtual machine's SHA512 and KEYGEN opcodes: SHA-512 digests and Ed25519
// keypair generation, both packed into big-endian 64-bit word arrays for
// storage on the VM heap.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/xlatticelabs/xlvm/stdlib/math"
)

// wordsFromBytes packs b into big-endian 64-bit words. len(b) must be a
// multiple of 8. The words are assembled in a math.U64Array and returned
// as a plain []int64; the array itself is not returned.
func wordsFromBytes(b []byte) []int64 {
	n := len(b) / 8
	raw := make([]uint64, n)
	for i := 0; i < n; i++ {
		raw[i] = binary.BigEndian.Uint64(b[i*8 : i*8+8])
	}
	arr := math.NewU64Array(raw...)
	out := make([]int64, arr.Len())
	for i, w := range arr.Data {
		out[i] = int64(w)
	}
	return out
}

// SHA512Words computes the SHA-512 digest of data and returns it as 8
// big-endian 64-bit words, per §4.7.
func SHA512Words(data []byte) []int64 {
	digest := sha512.Sum512(data)
	return wordsFromBytes(digest[:])
}

// GenerateEd25519Words generates a fresh Ed25519 keypair and returns the
// 32-byte public key and 32-byte private seed, each packed as 4 big-endian
// 64-bit words, per §4.7's KEYGEN layout.
func GenerateEd25519Words() (pubWords, privWords []int64, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: ed25519 keygen: %w", err)
	}
	seed := priv.Seed()
	return wordsFromBytes(pub), wordsFromBytes(seed), nil
}
