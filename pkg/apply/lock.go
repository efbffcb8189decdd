/*
Copyright 2026 The Forge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apply

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	forgeerrors "github.com/neopilotai/FORGE/internal/errors"
)

// DefaultLockTTL bounds how long a root lock survives a crashed holder.
const DefaultLockTTL = 5 * time.Minute

// Locker serialises applyPatches/rollback against the same working-tree
// root, per spec.md §5 ("against the same root, the applicator
// serialises... violators fail with ConcurrentApplication").
type Locker interface {
	Acquire(ctx context.Context, root string) (release func(context.Context) error, err error)
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker takes an exclusive per-root advisory lock via SET NX EX,
// releasing it with a Lua script that checks token ownership first so one
// holder never releases a lock another holder has since acquired.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client, TTL: DefaultLockTTL}
}

func lockKey(root string) string {
	return "forge:apply-lock:" + root
}

func (l *RedisLocker) Acquire(ctx context.Context, root string) (func(context.Context) error, error) {
	ttl := l.TTL
	if ttl == 0 {
		ttl = DefaultLockTTL
	}
	token := uuid.New().String()
	ok, err := l.Client.SetNX(ctx, lockKey(root), token, ttl).Result()
	if err != nil {
		return nil, forgeerrors.New(forgeerrors.ErrorTypeApplyFailed, "lock acquisition failed: "+err.Error())
	}
	if !ok {
		return nil, forgeerrors.New(forgeerrors.ErrorTypeConcurrentApply, "root is already locked by an in-flight application")
	}
	release := func(ctx context.Context) error {
		return l.Client.Eval(ctx, releaseScript, []string{lockKey(root)}, token).Err()
	}
	return release, nil
}

// InProcessLocker serialises same-process callers with one channel-backed
// mutex per root, used where a Redis deployment is unavailable (single
// process CLI runs).
type InProcessLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewInProcessLocker() *InProcessLocker {
	return &InProcessLocker{locks: make(map[string]chan struct{})}
}

func (l *InProcessLocker) Acquire(ctx context.Context, root string) (func(context.Context) error, error) {
	l.mu.Lock()
	ch, ok := l.locks[root]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[root] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		return func(context.Context) error {
			<-ch
			return nil
		}, nil
	default:
		return nil, forgeerrors.New(forgeerrors.ErrorTypeConcurrentApply, "root is already locked by an in-flight application")
	}
}
