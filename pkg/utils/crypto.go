package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
)

// Encrypt seals plaintext with AES-GCM and returns base64(nonce||ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	_, err = io.ReadFull(rand.Reader, nonce)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)
	finalData := append(nonce, ciphertext...)

	return base64.StdEncoding.EncodeToString(finalData), nil
}

// Decrypt reverses Encrypt. Values that fail to decode or authenticate are
// returned unchanged: legacy rows may hold tokens stored before encryption
// was introduced, and those must still be usable.
func Decrypt(encryptedData string, key []byte) string {
	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return encryptedData
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return encryptedData
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return encryptedData
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return encryptedData
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return encryptedData
	}

	return string(plaintext)
}
