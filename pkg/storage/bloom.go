package storage

import (
	"github.com/bits-and-blooms/bloom/v3"
)

const (
	MaxBlockTxCount = 1000

	falsePositive = 0.01
)

func MakeBloom(txHashes []string) ([]byte, error) {
	b := bloom.NewWithEstimates(MaxBlockTxCount, falsePositive)

	for _, h := range txHashes {
		b.AddString(h)
	}

	return b.GobEncode()
}

func BloomContains(b []byte, txHash string) (bool, error) {
	f := bloom.NewWithEstimates(MaxBlockTxCount, falsePositive)

	if err := f.GobDecode(b); err != nil {
		return false, err
	}

	return f.TestString(txHash), nil
}
