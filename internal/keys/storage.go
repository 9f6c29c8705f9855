package keys

import (
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dep2p/go-dep2p/pkg/lib/log"
)

var logger = log.Logger("keys")

// pemTypeEd25519 身份文件的 PEM 块类型
const pemTypeEd25519 = "ED25519 PRIVATE KEY"

var (
	// ErrKeyNotFound 身份文件不存在
	ErrKeyNotFound = errors.New("keys: key not found")
	// ErrInvalidPEM 身份文件内容损坏
	ErrInvalidPEM = errors.New("keys: invalid PEM data")
)

// Save 把私钥以 PEM 格式写入 path
//
// 使用原子写操作（临时文件 + rename）防止部分写入导致的文件损坏。
// 文件权限 0600，仅所有者可读写；父目录不存在时自动创建。
func Save(key *PrivateKey, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("创建密钥目录失败: %w", err)
		}
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeEd25519,
		Bytes: key.Bytes(),
	})
	return atomicWriteFile(path, data, 0600)
}

// Load 从 PEM 文件读取私钥
//
// 文件不存在返回 ErrKeyNotFound；内容无法解析为合法密钥一律返回
// ErrInvalidPEM，调用方据此区分损坏与 I/O 失败。
func Load(path string) (*PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypeEd25519 {
		return nil, ErrInvalidPEM
	}

	key, err := FromBytes(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: bad key length %d", ErrInvalidPEM, len(block.Bytes))
	}
	return key, nil
}

// LoadOrCreate 加载身份，必要时生成新的
//
// force 为 true 时忽略现有文件，直接生成新身份并覆盖。文件缺失或
// 内容损坏时同样生成新身份原子覆盖，不会因为一个坏文件而无法启动。
// 其余错误（如权限不足）原样返回。created 表示本次是否生成了新密钥。
func LoadOrCreate(path string, force bool) (key *PrivateKey, created bool, err error) {
	if !force {
		key, err := Load(path)
		if err == nil {
			return key, false, nil
		}
		switch {
		case errors.Is(err, ErrKeyNotFound):
		case errors.Is(err, ErrInvalidPEM):
			logger.Warn("身份文件损坏，生成新身份", "path", path, "err", err)
		default:
			return nil, false, err
		}
	}

	key, err = Generate()
	if err != nil {
		return nil, false, fmt.Errorf("生成身份密钥失败: %w", err)
	}
	if err := Save(key, path); err != nil {
		return nil, false, err
	}
	logger.Info("已生成新的节点身份", "path", path, "node", key.NodeID().ShortString())
	return key, true, nil
}

// atomicWriteFile 原子写文件
//
// 流程：
//  1. 写入同目录下的临时文件（前缀 .tmp-）
//  2. 同步到磁盘并设置权限
//  3. 原子 rename 到目标路径
//
// 任何步骤失败时目标文件保持不变。
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("原子 rename 失败: %w", err)
	}

	success = true
	return nil
}
