package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	_, ok := c.Get(Key("acme", "coder", "context"))
	assert.False(t, ok)

	c.Set(Key("acme", "coder", "context"), "bundle")
	v, ok := c.Get(Key("acme", "coder", "context"))
	assert.True(t, ok)
	assert.Equal(t, "bundle", v)
}

func TestExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)
	defer c.Close()

	c.Set("k", 1)
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestInvalidatePrefixIsTenantScoped(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set(Key("acme", "coder", "context"), 1)
	c.Set(Key("acme", "reviewer", "context"), 2)
	c.Set(Key("globex", "coder", "context"), 3)

	c.InvalidatePrefix("acme:")

	_, ok := c.Get(Key("acme", "coder", "context"))
	assert.False(t, ok)
	_, ok = c.Get(Key("acme", "reviewer", "context"))
	assert.False(t, ok)
	_, ok = c.Get(Key("globex", "coder", "context"))
	assert.True(t, ok)
}

func TestInvalidatePrefixByAgent(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set(Key("acme", "coder", "context"), 1)
	c.Set(Key("acme", "coder", "agents"), 2)
	c.Set(Key("acme", "reviewer", "context"), 3)

	c.InvalidatePrefix("acme:coder:")

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(Key("acme", "reviewer", "context"))
	assert.True(t, ok)
}
