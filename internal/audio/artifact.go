package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/iabetor/tagvoice/internal/logger"
)

// Artifact 是单个请求独占的临时音频文件。
// 持有者负责调用 Release；Release 可重复调用。
type Artifact struct {
	path string
	once sync.Once
}

// NewArtifact 在 dir 下创建一个以 uuid 命名的空文件并返回其句柄。
func NewArtifact(dir, suffix string) (*Artifact, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("[audio] 创建临时目录失败: %w", err)
	}

	path := filepath.Join(dir, "tagvoice-"+uuid.NewString()+suffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("[audio] 创建临时文件失败: %w", err)
	}
	f.Close()
	return &Artifact{path: path}, nil
}

// Derive 返回与 a 同目录、带后缀标记的新句柄，如 x.wav -> x_optimized.wav。
// 新文件尚未创建，由写入方负责生成。
func (a *Artifact) Derive(tag string) *Artifact {
	ext := filepath.Ext(a.path)
	return &Artifact{path: strings.TrimSuffix(a.path, ext) + "_" + tag + ext}
}

// Path 返回文件路径。
func (a *Artifact) Path() string { return a.path }

// ReadAll 读取文件全部内容。
func (a *Artifact) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("[audio] 读取 %s 失败: %w", a.path, err)
	}
	return data, nil
}

// Release 删除临时文件。nil 句柄是合法的。
func (a *Artifact) Release() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[audio] 删除临时文件失败: %s: %v", a.path, err)
		}
	})
}
