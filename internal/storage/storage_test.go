package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "auth_token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "auth_token", "abc"))
	require.NoError(t, kv.Set(ctx, "token_expiry", "1700000000000"))

	v, err := kv.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, kv.Delete(ctx, "auth_token", "token_expiry"))
	_, err = kv.Get(ctx, "token_expiry")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Delete(ctx, "never-set"))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseKV(t, m)
	assert.Equal(t, 0, m.Len())
}

func TestFile_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	f, err := NewFile(path, "")
	require.NoError(t, err)
	exerciseKV(t, f)

	require.NoError(t, f.Set(context.Background(), "remember_me", "true"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "remember_me")
}

func TestFile_Encrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	f, err := NewFile(path, "correct horse")
	require.NoError(t, err)
	exerciseKV(t, f)

	ctx := context.Background()
	require.NoError(t, f.Set(ctx, "auth_token", "secret-token"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("secret-token")))

	reopened, err := NewFile(path, "correct horse")
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", v)

	wrong, err := NewFile(path, "wrong")
	require.NoError(t, err)
	_, err = wrong.Get(ctx, "auth_token")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFile_EncryptedSurvivesMove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.bin")
	f, err := NewFile(path, "correct horse")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, f.Set(ctx, "auth_token", "secret-token"))

	moved := filepath.Join(dir, "backup", "session-old.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(moved), 0o700))
	require.NoError(t, os.Rename(path, moved))

	reopened, err := NewFile(moved, "correct horse")
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", v)
}

func TestNewFile_RequiresPath(t *testing.T) {
	_, err := NewFile("  ", "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	kv, err := Open(Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	kv, err = Open(Options{Backend: "file", Path: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, kv)

	_, err = Open(Options{Backend: "redis"})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "etcd"})
	assert.Error(t, err)
}

// fakeRedis records commands and answers from an in-memory map.
type fakeRedis struct {
	data map[string]string
	fail error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.fail != nil {
		return redis.NewStringResult("", f.fail)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", f.fail)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), f.fail)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.fail)
}

func TestRedis(t *testing.T) {
	fake := &fakeRedis{data: map[string]string{}}
	r := newRedisWithClient(fake, "")
	exerciseKV(t, r)

	require.NoError(t, r.Set(context.Background(), "auth_token", "t"))
	assert.Equal(t, "t", fake.data[defaultRedisPrefix+"auth_token"])
	require.NoError(t, r.Ping(context.Background()))
}

func TestRedis_Errors(t *testing.T) {
	fake := &fakeRedis{data: map[string]string{}, fail: errors.New("connection reset")}
	r := newRedisWithClient(fake, "test:")

	_, err := r.Get(context.Background(), "auth_token")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Error(t, r.Ping(context.Background()))
	assert.NoError(t, r.Delete(context.Background()))
}

func TestNewRedis_RequiresAddr(t *testing.T) {
	_, err := NewRedis(RedisOptions{})
	assert.Error(t, err)

	r, err := NewRedis(RedisOptions{Addr: "127.0.0.1:6379", Prefix: "p:"})
	require.NoError(t, err)
	assert.Equal(t, "p:", r.prefix)
}
