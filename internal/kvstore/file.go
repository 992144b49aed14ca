package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore はJSONファイルに全件を読み書きするストア。
// 低頻度のセッション・アカウント保存を想定しており、呼び出しごとに
// ファイル全体を読み書きする。プロセス内の排他はミューテックスで行うが、
// プロセスをまたぐread-modify-writeはアトミックではない（last-write-wins）。
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore は指定パスのJSONファイルを使用するFileStoreを生成する。
// ファイルと親ディレクトリは最初の書き込み時に作成される。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get はキーに対応する値を返す。キーが存在しない場合は (nil, nil) を返す。
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return nil, err
	}
	v, ok := data[key]
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

// Set はキーに値を保存する。
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	data[key] = string(value)
	return s.write(data)
}

// Delete はキーを削除する。キーが存在しない場合も成功として扱う。
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.write(data)
}

// read はファイル全体を読み込んでマップに変換する。
// ファイルが存在しない場合は空のマップを返す。
func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("kvstore: failed to read %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return make(map[string]string), nil
	}

	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("kvstore: failed to parse %s: %w", s.path, err)
	}
	return data, nil
}

// write はマップ全体をファイルに書き込む。親ディレクトリがなければ作成する。
func (s *FileStore) write(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("kvstore: failed to create data directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: failed to encode store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("kvstore: failed to write %s: %w", s.path, err)
	}
	return nil
}
