package vault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// chunkNonce builds the 12-byte GCM nonce for chunk i of a file whose
// noncePrefix is the 8 random bytes generated at encryption time.
func chunkNonce(noncePrefix []byte, i uint32) []byte {
	n := make([]byte, gcmNonceLen)
	copy(n, noncePrefix)
	binary.BigEndian.PutUint32(n[8:], i)
	return n
}

// encodePVLTHeader builds the fixed 29-byte PVLT1 header.
func encodePVLTHeader(chunkSize uint32, noncePrefix []byte, originalSize uint64, chunkCount uint32) []byte {
	h := make([]byte, pvltHeaderLen)
	copy(h[0:5], pvltMagic)
	binary.BigEndian.PutUint32(h[5:9], chunkSize)
	copy(h[9:17], noncePrefix)
	binary.BigEndian.PutUint64(h[17:25], originalSize)
	binary.BigEndian.PutUint32(h[25:29], chunkCount)
	return h
}

// EncryptFile streams src through AES-256-GCM into a new PVLT1 container at
// dst, sealing chunkSize-byte plaintext chunks under deterministic
// noncePrefix||counter nonces. dst is written via a temp file in the same
// directory followed by an atomic rename, so a crash or error never leaves
// a partial file at dst.
func EncryptFile(masterKey []byte, srcPath, dstPath string, chunkSize int) error {
	if chunkSize <= 0 || chunkSize >= (1<<31) {
		chunkSize = DefaultChunkSize
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "pvlt-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	noncePrefix, err := randomBytes(8)
	if err != nil {
		return err
	}

	header := encodePVLTHeader(uint32(chunkSize), noncePrefix, uint64(info.Size()), 0)
	if _, err := tmp.Write(header); err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	var i uint32
	lenField := make([]byte, 4)
	for {
		n, rerr := io.ReadFull(src, buf)
		if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			return rerr
		}
		if n == 0 {
			break
		}

		sealed, err := sealCombined(masterKey, buf[:n], chunkNonce(noncePrefix, i))
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(lenField, uint32(len(sealed)))
		if _, err := tmp.Write(lenField); err != nil {
			return err
		}
		if _, err := tmp.Write(sealed); err != nil {
			return err
		}
		i++

		if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			break
		}
	}

	if _, err := tmp.Seek(25, io.SeekStart); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(lenField, i)
	if _, err := tmp.Write(lenField); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return err
	}
	success = true
	return nil
}

// DecryptFile verifies and streams a PVLT1 container at srcPath back to
// plaintext at dstPath. Any failure leaves dstPath absent: decryption
// writes to a temp file and only renames it into place once every chunk
// has authenticated and the trailing-byte/size checks pass.
func DecryptFile(masterKey []byte, srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	header := make([]byte, pvltHeaderLen)
	if _, err := io.ReadFull(src, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrMalformed
		}
		return err
	}
	if string(header[0:5]) != pvltMagic {
		return ErrInvalidMagic
	}
	chunkSize := binary.BigEndian.Uint32(header[5:9])
	noncePrefix := append([]byte(nil), header[9:17]...)
	originalSize := binary.BigEndian.Uint64(header[17:25])
	chunkCount := binary.BigEndian.Uint32(header[25:29])

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "pvlt-dec-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	var written uint64
	lenField := make([]byte, 4)
	maxSealed := uint64(chunkSize) + combinedMinLen
	for i := uint32(0); i < chunkCount; i++ {
		if _, err := io.ReadFull(src, lenField); err != nil {
			return ErrMalformed
		}
		sealedLen := binary.BigEndian.Uint32(lenField)
		if uint64(sealedLen) < combinedMinLen || uint64(sealedLen) > maxSealed {
			return ErrMalformed
		}
		// Every chunk but the last must carry exactly chunkSize bytes of
		// plaintext; this also ties the header's chunkSize field to the
		// chunk stream even though the header is not authenticated.
		if i < chunkCount-1 && uint64(sealedLen) != maxSealed {
			return ErrMalformed
		}

		combined := make([]byte, sealedLen)
		if _, err := io.ReadFull(src, combined); err != nil {
			return ErrMalformed
		}

		want := chunkNonce(noncePrefix, i)
		if !bytes.Equal(combined[:gcmNonceLen], want) {
			return ErrNonceMismatch
		}

		pt, err := openCombined(masterKey, combined)
		if err != nil {
			return err
		}
		if _, err := tmp.Write(pt); err != nil {
			return err
		}
		written += uint64(len(pt))
	}

	// Strict trailing-byte check: nothing may follow the last chunk.
	var extra [1]byte
	if n, _ := src.Read(extra[:]); n > 0 {
		return ErrTrailingGarbage
	}

	if written != originalSize {
		return ErrSizeMismatch
	}

	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		return err
	}
	success = true
	return nil
}
