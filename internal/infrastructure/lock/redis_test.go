package lock

import (
	"errors"
	"testing"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	corelock "prodflow/internal/core/lock"
)

func TestMapObtainErr(t *testing.T) {
	err := mapObtainErr("prodflow:order:1", redislock.ErrNotObtained)
	assert.ErrorIs(t, err, corelock.ErrNotObtained)

	other := errors.New("dial tcp: connection refused")
	err = mapObtainErr("prodflow:order:1", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, corelock.ErrNotObtained)
}

func TestNewRedisLocker_DefaultTTL(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	l := NewRedisLocker(rdb, 0)
	assert.Equal(t, DefaultTTL, l.ttl)
	assert.NotNil(t, l.opts.RetryStrategy)
}
