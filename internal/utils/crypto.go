// internal/utils/crypto.go
package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// 加密值在配置文件中的前缀，用于区分明文密钥
const encryptedPrefix = "enc:"

// normalizeKey 将任意长度的密钥规整为AES-256所需的32字节
func normalizeKey(key string) []byte {
	keyBytes := []byte(key)
	if len(keyBytes) >= 32 {
		return keyBytes[:32]
	}
	padded := make([]byte, 32)
	copy(padded, keyBytes)
	return padded
}

// EncryptSecret 用AES-GCM加密敏感值（API密钥落盘保护），
// 输出带前缀的base64密文。
func EncryptSecret(plaintext, key string) (string, error) {
	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptSecret 解密EncryptSecret的输出。
// 无前缀的值视为明文原样返回，兼容手工编辑的配置文件。
func DecryptSecret(value, key string) (string, error) {
	if !IsEncryptedSecret(value) {
		return value, nil
	}

	ciphertextBytes, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(normalizeKey(key))
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertextBytes) < nonceSize {
		return "", fmt.Errorf("密文长度不足")
	}

	nonce, ciphertextBytes := ciphertextBytes[:nonceSize], ciphertextBytes[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// IsEncryptedSecret 判断值是否为加密形式
func IsEncryptedSecret(value string) bool {
	return strings.HasPrefix(value, encryptedPrefix)
}
