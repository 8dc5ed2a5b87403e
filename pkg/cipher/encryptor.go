// Package cipher implements the ledger encryptor (spec §4.C): it reads the
// shreds of a segment out of a blockstore, concatenates them, and streams
// the result through "ChaCha-CBC" — each 64-byte cipher block is XORed
// with the previous cipher block before the ChaCha20 keystream is applied,
// with the signature bytes standing in as the IV for the first block.
package cipher

import (
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20"

	"github.com/dlguddus/solana/pkg/blockstore"
)

// BlockSize is the cipher block size in bytes (spec §4.C).
const BlockSize = 64

// EncryptSegment reads the shreds in [startSlot, startSlot+slotsPerSegment)
// from store, concatenates their payloads in slot order, and encrypts the
// result to destPath. The final partial block is zero-padded so the output
// length is always a multiple of BlockSize. It returns the number of whole
// cipher blocks written (num_chacha_blocks).
func EncryptSegment(
	store *blockstore.Blockstore,
	startSlot, slotsPerSegment uint64,
	sig [64]byte,
	destPath string,
) (uint64, error) {
	plaintext := store.OrderedPayloads(startSlot, startSlot+slotsPerSegment)

	padded := len(plaintext)
	if rem := padded % BlockSize; rem != 0 {
		padded += BlockSize - rem
	}
	if padded == 0 {
		padded = BlockSize
	}
	buf := make([]byte, padded)
	copy(buf, plaintext)

	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("cipher: create %s: %w", destPath, err)
	}
	defer f.Close()

	numBlocks := padded / BlockSize
	prevCipherBlock := sig[:BlockSize]

	for i := 0; i < numBlocks; i++ {
		block := buf[i*BlockSize : (i+1)*BlockSize]

		chained := make([]byte, BlockSize)
		for j := range chained {
			chained[j] = block[j] ^ prevCipherBlock[j]
		}

		cipherBlock, err := chachaKeystreamXOR(sig, uint64(i), chained)
		if err != nil {
			return 0, fmt.Errorf("cipher: encrypt block %d: %w", i, err)
		}

		if _, err := f.Write(cipherBlock); err != nil {
			return 0, fmt.Errorf("cipher: write block %d: %w", i, err)
		}

		prevCipherBlock = cipherBlock
	}

	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("cipher: sync: %w", err)
	}

	return uint64(numBlocks), nil
}

// chachaKeystreamXOR runs block through a ChaCha20 keystream keyed by the
// low 32 bytes of sig. The low 32 bits of blockIdx are written
// little-endian into the first 4 bytes of the nonce (the block counter
// starts at 0), so every cipher block gets its own keystream.
func chachaKeystreamXOR(sig [64]byte, blockIdx uint64, block []byte) ([]byte, error) {
	var key [chacha20.KeySize]byte
	copy(key[:], sig[:chacha20.KeySize])

	var nonce [chacha20.NonceSize]byte
	nonce[0] = byte(blockIdx)
	nonce[1] = byte(blockIdx >> 8)
	nonce[2] = byte(blockIdx >> 16)
	nonce[3] = byte(blockIdx >> 24)

	stream, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(block))
	stream.XORKeyStream(out, block)
	return out, nil
}
