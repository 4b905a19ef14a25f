package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BaSui01/paneltalk/types"
	"go.uber.org/zap"
)

// FileStore 把档案库保存为单个 JSON 文件。
// 全量常驻内存，读走内存，写先落盘再更新内存。
type FileStore struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	personas map[string]*types.Speaker
}

// NewFileStore 打开（或初始化）文件档案库。文件不存在时从空库开始。
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := &FileStore{
		path:     path,
		logger:   logger.With(zap.String("component", "persona_file_store")),
		personas: make(map[string]*types.Speaker),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read persona file: %w", err)
	}

	var list []*types.Speaker
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse persona file %s: %w", fs.path, err)
	}
	for _, sp := range list {
		fs.personas[sp.Name] = sp
	}
	fs.logger.Info("persona file loaded",
		zap.String("path", fs.path),
		zap.Int("count", len(list)),
	)
	return nil
}

// persist 全量写盘。先写临时文件再改名，避免写坏半个文件。
// 调用方须持有写锁。
func (fs *FileStore) persist() error {
	list := make([]*types.Speaker, 0, len(fs.personas))
	for _, sp := range fs.personas {
		list = append(list, sp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode personas: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create persona dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write persona file: %w", err)
	}
	return os.Rename(tmp, fs.path)
}

// Get 按名称取档案。
func (fs *FileStore) Get(_ context.Context, name string) (*types.Speaker, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	sp, ok := fs.personas[name]
	if !ok {
		return nil, notFound(name)
	}
	cp := *sp
	return &cp, nil
}

// List 返回全部档案，按名称字典序。
func (fs *FileStore) List(_ context.Context) ([]*types.Speaker, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	out := make([]*types.Speaker, 0, len(fs.personas))
	for _, sp := range fs.personas {
		cp := *sp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Put 新建或整体覆盖档案。
func (fs *FileStore) Put(_ context.Context, sp *types.Speaker) error {
	if err := Validate(sp); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	cp := *sp
	prev, existed := fs.personas[cp.Name]
	fs.personas[cp.Name] = &cp
	if err := fs.persist(); err != nil {
		// 落盘失败回滚内存，保持文件与内存一致
		if existed {
			fs.personas[cp.Name] = prev
		} else {
			delete(fs.personas, cp.Name)
		}
		return err
	}
	return nil
}

// Delete 删除档案。
func (fs *FileStore) Delete(_ context.Context, name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev, ok := fs.personas[name]
	if !ok {
		return notFound(name)
	}
	delete(fs.personas, name)
	if err := fs.persist(); err != nil {
		fs.personas[name] = prev
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)
