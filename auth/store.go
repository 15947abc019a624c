// Package auth 提供账号存储（PBKDF2 哈希）与 JWT 签发校验。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultIterations = 100_000
	SaltSize          = 32
	KeySize           = 32
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Credential 对应用户文件中的一条记录，十六进制编码
type Credential struct {
	Hash string `json:"hash"`
	Salt string `json:"salt"`
}

// Backend 持久化整张用户表
type Backend interface {
	Load(ctx context.Context) (map[string]Credential, error)
	Save(ctx context.Context, users map[string]Credential) error
}

type Store struct {
	mu         sync.Mutex // 保护 users 的读取与替换
	saveMu     sync.Mutex // 串行化写回后端
	backend    Backend
	users      map[string]Credential
	iterations int
}

// NewStore 启动时一次性加载用户表
func NewStore(ctx context.Context, backend Backend) (*Store, error) {
	users, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if users == nil {
		users = make(map[string]Credential)
	}
	return &Store{
		backend:    backend,
		users:      users,
		iterations: DefaultIterations,
	}, nil
}

// SetIterations 仅供测试降低开销
func (s *Store) SetIterations(n int) {
	s.mu.Lock()
	s.iterations = n
	s.mu.Unlock()
}

// Register 新建用户并写回后端；已存在返回 ErrUserExists。
// 哈希与写回都不持有 mu，Check 不会被阻塞。
func (s *Store) Register(ctx context.Context, username, password string) error {
	s.mu.Lock()
	_, exists := s.users[username]
	iterations := s.iterations
	s.mu.Unlock()
	if exists {
		return ErrUserExists
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	hash := pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
	cred := Credential{Hash: hex.EncodeToString(hash), Salt: hex.EncodeToString(salt)}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	// 持有 saveMu 期间没有其他写者，users 只会被本次替换
	s.mu.Lock()
	if _, ok := s.users[username]; ok {
		s.mu.Unlock()
		return ErrUserExists
	}
	next := make(map[string]Credential, len(s.users)+1)
	for k, v := range s.users {
		next[k] = v
	}
	s.mu.Unlock()

	next[username] = cred
	if err := s.backend.Save(ctx, next); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	s.mu.Lock()
	s.users = next
	s.mu.Unlock()
	return nil
}

// Check 校验口令，未知用户与错误口令都返回 ErrInvalidCredentials
func (s *Store) Check(username, password string) error {
	s.mu.Lock()
	cred, ok := s.users[username]
	iterations := s.iterations
	s.mu.Unlock()
	if !ok {
		return ErrInvalidCredentials
	}

	salt, err := hex.DecodeString(cred.Salt)
	if err != nil {
		return fmt.Errorf("user %s: bad salt: %w", username, err)
	}
	want, err := hex.DecodeString(cred.Hash)
	if err != nil {
		return fmt.Errorf("user %s: bad hash: %w", username, err)
	}
	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
