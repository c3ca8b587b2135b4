package vault

import (
	"bytes"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := randomBytes(MasterKeyLen)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	for _, pt := range [][]byte{nil, {}, []byte("x"), []byte("hello\n"), bytes.Repeat([]byte{0xAB}, 4096)} {
		combined, err := sealCombined(key, pt, nil)
		if err != nil {
			t.Fatalf("seal %d bytes: %v", len(pt), err)
		}
		if len(combined) != len(pt)+combinedMinLen {
			t.Errorf("combined length = %d, want %d", len(combined), len(pt)+combinedMinLen)
		}
		got, err := openCombined(key, combined)
		if err != nil {
			t.Fatalf("open %d bytes: %v", len(pt), err)
		}
		if !bytes.Equal(got, pt) {
			t.Errorf("round trip of %d bytes mismatched", len(pt))
		}
	}
}

func TestOpenRejectsTamper(t *testing.T) {
	key := testKey(t)
	combined, err := sealCombined(key, []byte("attack at dawn"), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range combined {
		mutated := append([]byte(nil), combined...)
		mutated[i] ^= 0x01
		if _, err := openCombined(key, mutated); !errors.Is(err, ErrAuthFailure) {
			t.Fatalf("flip at offset %d: got %v, want ErrAuthFailure", i, err)
		}
	}
}

func TestOpenRejectsShortInput(t *testing.T) {
	key := testKey(t)
	for n := 0; n < combinedMinLen; n++ {
		if _, err := openCombined(key, make([]byte, n)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("len=%d: got %v, want ErrMalformed", n, err)
		}
	}
}

func TestSealHonorsImposedNonce(t *testing.T) {
	key := testKey(t)
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 9}
	combined, err := sealCombined(key, []byte("payload"), nonce)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(combined[:gcmNonceLen], nonce) {
		t.Errorf("leading nonce = %x, want %x", combined[:gcmNonceLen], nonce)
	}
	if _, err := sealCombined(key, []byte("payload"), []byte{1, 2, 3}); !errors.Is(err, ErrMalformed) {
		t.Errorf("short nonce: got %v, want ErrMalformed", err)
	}
}

func TestSealGeneratesFreshNonces(t *testing.T) {
	key := testKey(t)
	a, err := sealCombined(key, []byte("same plaintext"), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := sealCombined(key, []byte("same plaintext"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:gcmNonceLen], b[:gcmNonceLen]) {
		t.Error("two seals produced the same random nonce")
	}
}
