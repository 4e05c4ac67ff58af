package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/doctranslate/types"
)

var (
	// ErrFileNotFound 文件不存在
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedFormat 没有为该扩展名注册加载器
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// DocumentLoader 将一种文件格式读取为纯文本
type DocumentLoader interface {
	// Load 读取 path 并返回其文本内容.
	Load(ctx context.Context, path string) (string, error)

	// SupportedTypes 返回处理的扩展名 (如 ".txt").
	SupportedTypes() []string
}

// Registry 按扩展名把 Load 路由到对应的 DocumentLoader
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader // 小写扩展名(含点) -> loader
}

// NewRegistry 创建预置内建加载器的注册表
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]DocumentLoader)}
	for _, l := range []DocumentLoader{
		NewTextLoader(),
		NewHTMLLoader(),
		NewPDFLoader(),
		NewDocxLoader(),
	} {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
	return r
}

// Register 添加或替换扩展名对应的加载器. ext 需包含前导点.
func (r *Registry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// Load 检查文件存在且格式受支持, 然后委托给对应加载器.
func (r *Registry) Load(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", notFound(path)
		}
		return "", fmt.Errorf("loader: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", notFound(path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()
	if !ok {
		return "", types.NewError(types.ErrUnsupportedFormat, fmt.Sprintf("unsupported file format %q", ext)).
			WithCause(fmt.Errorf("%w: %s", ErrUnsupportedFormat, path))
	}

	return l.Load(ctx, path)
}

// Supports 判断扩展名是否已注册
func (r *Registry) Supports(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedTypes 返回所有已注册扩展名, 已排序
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FileInfo 描述一个待翻译文件
type FileInfo struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	Supported bool   `json:"is_supported"`
}

// Info 返回文件信息
func (r *Registry) Info(path string) (*FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(path)
		}
		return nil, fmt.Errorf("loader: stat %s: %w", path, err)
	}
	return &FileInfo{
		Name:      st.Name(),
		Size:      st.Size(),
		Extension: filepath.Ext(path),
		Supported: r.Supports(path),
	}, nil
}

// Save 写入 UTF-8 文本, 按需创建父目录
func Save(path, content string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("loader: create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("loader: write %s: %w", path, err)
	}
	return nil
}

func notFound(path string) error {
	return types.NewError(types.ErrFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithCause(fmt.Errorf("%w: %s", ErrFileNotFound, path))
}
