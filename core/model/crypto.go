package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

func Keccak256(data string) string {
	return fmt.Sprintf("%x", Keccak256Hash([]byte(data)))
}

func Keccak256Hash(data ...[]byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()

	for _, d := range data {
		hasher.Write(d)
	}

	return common.BytesToHash(hasher.Sum(nil))
}
