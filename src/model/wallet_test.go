package model

import (
	"testing"

	"github.com/pkg/errors"
)

func TestWalletChecksumming(t *testing.T) {
	// checksummed forms from the EIP-55 reference vectors
	vectors := map[string]string{
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359": "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbf03b407c01e7cd3cbea99509d93f8dddc8c6fb": "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"d1220a0cf47c7b9be7a2e6ba89f429762e7b9adb":   "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for raw, expected := range vectors {
		got, err := NormalizeWallet(raw)
		if err != nil {
			t.Fatalf("failed normalizing %s: %s", raw, err)
		}
		if string(got) != expected {
			t.Fatalf("normalized %s to %s, expected %s", raw, got, expected)
		}
	}
}

func TestWalletNormalizationIsIdempotent(t *testing.T) {
	w := MustWallet("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	again, err := NormalizeWallet(string(w))
	if err != nil {
		t.Fatal(err)
	}
	if again != w {
		t.Fatalf("re-normalizing changed the address: %s vs %s", again, w)
	}
}

func TestWalletRejectsMalformedInput(t *testing.T) {
	bad := []string{
		"",
		"0x",
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beae",    // 39 chars
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed1",  // 41 chars
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaexy",  // non-hex
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", // wrong chain entirely
	}
	for _, raw := range bad {
		if _, err := NormalizeWallet(raw); !errors.Is(err, ErrInvalidWallet) {
			t.Fatalf("expected ErrInvalidWallet for %q, got %v", raw, err)
		}
	}
}
