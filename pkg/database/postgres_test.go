package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/coursework-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "coursework", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=coursework sslmode=disable", dsn)
}

func TestWithQueryTimeout(t *testing.T) {
	ctx, cancel := WithQueryTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.True(t, ok)

	unbounded, cancelUnbounded := WithQueryTimeout(context.Background(), 0)
	defer cancelUnbounded()
	_, ok = unbounded.Deadline()
	assert.False(t, ok)
}
