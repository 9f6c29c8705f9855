// Package keys 管理调试代理的 P2P 节点身份
//
// 身份是一把 Ed25519 私钥。包内实现 dep2p 的密钥接口，使同一把密钥
// 既能持久化到磁盘、以 base58 口令形式导出导入，也能直接交给 dep2p
// 节点使用，保证调试代理在重启后保持相同的节点 ID。
package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/dep2p/go-dep2p/pkg/interfaces/identity"
	"github.com/dep2p/go-dep2p/pkg/types"
	"github.com/mr-tron/base58"
)

var (
	// ErrInvalidKeySize 密钥字节长度不合法
	ErrInvalidKeySize = errors.New("keys: invalid key size")
	// ErrInvalidSecret 导出口令无法解码为密钥
	ErrInvalidSecret = errors.New("keys: invalid secret encoding")
)

// ============================================================================
//                              PublicKey
// ============================================================================

// PublicKey Ed25519 公钥
type PublicKey struct {
	key ed25519.PublicKey
}

var _ identity.PublicKey = (*PublicKey)(nil)

// Bytes 返回公钥的字节表示
func (k *PublicKey) Bytes() []byte {
	return k.key
}

// Equal 比较两个公钥是否相等
func (k *PublicKey) Equal(other identity.PublicKey) bool {
	otherPub, ok := other.(*PublicKey)
	if !ok {
		return false
	}
	return k.key.Equal(otherPub.key)
}

// Verify 使用公钥验证签名
func (k *PublicKey) Verify(data, signature []byte) (bool, error) {
	if len(signature) != ed25519.SignatureSize {
		return false, nil
	}
	return ed25519.Verify(k.key, data, signature), nil
}

// Type 返回密钥类型
func (k *PublicKey) Type() types.KeyType {
	return types.KeyTypeEd25519
}

// Raw 返回底层密钥
func (k *PublicKey) Raw() crypto.PublicKey {
	return k.key
}

// ============================================================================
//                              PrivateKey
// ============================================================================

// PrivateKey Ed25519 私钥
type PrivateKey struct {
	key ed25519.PrivateKey
}

var _ identity.PrivateKey = (*PrivateKey)(nil)

// Generate 生成新的身份密钥
func Generate() (*PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: priv}, nil
}

// FromBytes 从 64 字节私钥数据恢复密钥
func FromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	return &PrivateKey{key: ed25519.PrivateKey(append([]byte(nil), b...))}, nil
}

// PublicKey 返回对应的公钥
func (k *PrivateKey) PublicKey() identity.PublicKey {
	return &PublicKey{key: k.key.Public().(ed25519.PublicKey)}
}

// Sign 使用私钥签名数据
func (k *PrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.key, data), nil
}

// Bytes 返回私钥的字节表示
func (k *PrivateKey) Bytes() []byte {
	return k.key
}

// Type 返回密钥类型
func (k *PrivateKey) Type() types.KeyType {
	return types.KeyTypeEd25519
}

// Raw 返回底层密钥
func (k *PrivateKey) Raw() crypto.PrivateKey {
	return k.key
}

// NodeID 返回密钥派生的节点 ID
func (k *PrivateKey) NodeID() types.NodeID {
	return identity.NodeIDFromPublicKey(k.PublicKey())
}

// ============================================================================
//                              口令导出导入
// ============================================================================

// EncodeSecret 把私钥编码为 base58 口令
//
// 口令包含完整私钥材料，用于把身份携带到另一个进程或主机，
// 不得写入日志。
func EncodeSecret(k *PrivateKey) string {
	return base58.Encode(k.Bytes())
}

// DecodeSecret 解析 EncodeSecret 生成的口令
func DecodeSecret(secret string) (*PrivateKey, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	key, err := FromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSecret, ed25519.PrivateKeySize, len(raw))
	}
	return key, nil
}
