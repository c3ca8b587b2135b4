package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		t.Fatal(err)
	}
	return data
}

func encryptPayload(t *testing.T, key, payload []byte, chunkSize int) string {
	t.Helper()
	src := writeTempFile(t, payload)
	dst := filepath.Join(t.TempDir(), "payload.pvlt")
	if err := EncryptFile(key, src, dst, chunkSize); err != nil {
		t.Fatal(err)
	}
	return dst
}

func decryptToBytes(t *testing.T, key []byte, srcPath string) ([]byte, error) {
	t.Helper()
	dst := filepath.Join(t.TempDir(), "out")
	if err := DecryptFile(key, srcPath, dst); err != nil {
		if _, statErr := os.Stat(dst); !errors.Is(statErr, os.ErrNotExist) {
			t.Errorf("decrypt failed with %v but left output at %s", err, dst)
		}
		return nil, err
	}
	data, readErr := os.ReadFile(dst)
	if readErr != nil {
		t.Fatal(readErr)
	}
	return data, nil
}

func containerChunkCount(t *testing.T, path string) uint32 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return binary.BigEndian.Uint32(data[25:29])
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	cases := []struct {
		name      string
		size      int
		chunkSize int
	}{
		{"empty", 0, DefaultChunkSize},
		{"tiny", 6, DefaultChunkSize},
		{"one byte chunks", 1000, 1},
		{"exact chunk", 4096, 4096},
		{"chunk plus one", 4097, 4096},
		{"multi chunk", 3 << 20, DefaultChunkSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := randomPayload(t, tc.size)
			enc := encryptPayload(t, key, payload, tc.chunkSize)
			got, err := decryptToBytes(t, key, enc)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip of %d bytes mismatched", tc.size)
			}
		})
	}
}

func TestChunkBoundaries(t *testing.T) {
	key := testKey(t)

	exact := encryptPayload(t, key, randomPayload(t, 4096), 4096)
	if got := containerChunkCount(t, exact); got != 1 {
		t.Errorf("chunkSize-sized payload: chunkCount = %d, want 1", got)
	}

	plusOne := encryptPayload(t, key, randomPayload(t, 4097), 4096)
	if got := containerChunkCount(t, plusOne); got != 2 {
		t.Errorf("chunkSize+1 payload: chunkCount = %d, want 2", got)
	}

	empty := encryptPayload(t, key, nil, 4096)
	if got := containerChunkCount(t, empty); got != 0 {
		t.Errorf("empty payload: chunkCount = %d, want 0", got)
	}
}

func TestLargeFileChunking(t *testing.T) {
	if testing.Short() {
		t.Skip("5 MB payload")
	}
	key := testKey(t)
	payload := randomPayload(t, 5_000_000)
	enc := encryptPayload(t, key, payload, DefaultChunkSize)
	if got := containerChunkCount(t, enc); got != 5 {
		t.Fatalf("chunkCount = %d, want 5", got)
	}
	got, err := decryptToBytes(t, key, enc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("5 MB round trip mismatched")
	}
}

// A 6-byte payload in one chunk: 29-byte header, 4-byte length field, then
// nonce(12) + ciphertext(6) + tag(16).
func TestContainerSizeSingleChunk(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, []byte("hello\n"), DefaultChunkSize)
	info, err := os.Stat(enc)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 67 {
		t.Errorf("container size = %d, want 67", info.Size())
	}
}

func TestNoncePrefixFreshPerFile(t *testing.T) {
	key := testKey(t)
	payload := []byte("same bytes both times")
	a := encryptPayload(t, key, payload, DefaultChunkSize)
	b := encryptPayload(t, key, payload, DefaultChunkSize)

	dataA, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	dataB, err := os.ReadFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(dataA[9:17], dataB[9:17]) {
		t.Error("two encryptions share a noncePrefix")
	}
}

// Every single-byte mutation of a two-chunk container must fail to decode,
// including flips in the unauthenticated header fields.
func TestTamperAnyByteFails(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, randomPayload(t, 20), 16)
	original, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}

	for i := range original {
		mutated := append([]byte(nil), original...)
		mutated[i] ^= 0x01
		path := writeTempFile(t, mutated)
		if _, err := decryptToBytes(t, key, path); err == nil {
			t.Fatalf("flip at offset %d decoded successfully", i)
		}
	}
}

func TestTruncationFails(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, randomPayload(t, 20), 16)
	original, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}

	for _, cut := range []int{1, 16, len(original) - pvltHeaderLen} {
		path := writeTempFile(t, original[:len(original)-cut])
		if _, err := decryptToBytes(t, key, path); err == nil {
			t.Fatalf("truncating %d bytes decoded successfully", cut)
		}
	}
}

func TestTrailingGarbageFails(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, randomPayload(t, 20), 16)
	original, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}

	path := writeTempFile(t, append(original, 0x00))
	if _, err := decryptToBytes(t, key, path); !errors.Is(err, ErrTrailingGarbage) {
		t.Errorf("got %v, want ErrTrailingGarbage", err)
	}
}

func TestInvalidMagicFails(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, []byte("hello\n"), DefaultChunkSize)
	original, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}

	mutated := append([]byte(nil), original...)
	copy(mutated, "NOPE!")
	path := writeTempFile(t, mutated)
	if _, err := decryptToBytes(t, key, path); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("got %v, want ErrInvalidMagic", err)
	}
}

// splitChunks returns the byte ranges of each length-prefixed chunk record.
func splitChunks(t *testing.T, container []byte) [][]byte {
	t.Helper()
	var chunks [][]byte
	off := pvltHeaderLen
	for off < len(container) {
		sealedLen := int(binary.BigEndian.Uint32(container[off : off+4]))
		chunks = append(chunks, container[off:off+4+sealedLen])
		off += 4 + sealedLen
	}
	return chunks
}

func TestChunkReorderAndDuplicateFail(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, randomPayload(t, 32), 16)
	original, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}
	header := original[:pvltHeaderLen]
	chunks := splitChunks(t, original)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	swapped := append(append(append([]byte(nil), header...), chunks[1]...), chunks[0]...)
	if _, err := decryptToBytes(t, key, writeTempFile(t, swapped)); err == nil {
		t.Error("swapped chunks decoded successfully")
	}

	duplicated := append(append([]byte(nil), original...), chunks[1]...)
	if _, err := decryptToBytes(t, key, writeTempFile(t, duplicated)); err == nil {
		t.Error("duplicated chunk decoded successfully")
	}
}

func TestChunkSpliceFromOtherFileFails(t *testing.T) {
	key := testKey(t)
	payload := randomPayload(t, 32)
	encA := encryptPayload(t, key, payload, 16)
	encB := encryptPayload(t, key, payload, 16)

	dataA, err := os.ReadFile(encA)
	if err != nil {
		t.Fatal(err)
	}
	dataB, err := os.ReadFile(encB)
	if err != nil {
		t.Fatal(err)
	}
	chunksA := splitChunks(t, dataA)
	chunksB := splitChunks(t, dataB)

	// Same plaintext, same chunk index, but a foreign noncePrefix.
	spliced := append(append(append([]byte(nil), dataA[:pvltHeaderLen]...), chunksB[0]...), chunksA[1]...)
	if _, err := decryptToBytes(t, key, writeTempFile(t, spliced)); !errors.Is(err, ErrNonceMismatch) {
		t.Errorf("got %v, want ErrNonceMismatch", err)
	}
}

func TestSizeMismatchFails(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, randomPayload(t, 20), 16)
	original, err := os.ReadFile(enc)
	if err != nil {
		t.Fatal(err)
	}

	mutated := append([]byte(nil), original...)
	binary.BigEndian.PutUint64(mutated[17:25], 21)
	if _, err := decryptToBytes(t, key, writeTempFile(t, mutated)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("got %v, want ErrSizeMismatch", err)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := testKey(t)
	enc := encryptPayload(t, key, []byte("hello\n"), DefaultChunkSize)
	if _, err := decryptToBytes(t, testKey(t), enc); !errors.Is(err, ErrAuthFailure) {
		t.Errorf("got %v, want ErrAuthFailure", err)
	}
}
