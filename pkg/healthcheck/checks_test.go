package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	assert.NoError(t, Redis(rdb)(context.Background()))

	mr.Close()
	assert.Error(t, Redis(rdb)(context.Background()))
}

func TestComposite(t *testing.T) {
	errDown := errors.New("down")
	var calledAfter bool

	check := Composite(
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return errDown },
		func(ctx context.Context) error { calledAfter = true; return nil },
	)

	assert.ErrorIs(t, check(context.Background()), errDown)
	assert.False(t, calledAfter, "после первой ошибки проверки не продолжаются")
}
