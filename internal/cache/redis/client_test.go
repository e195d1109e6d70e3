package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "ledger:lock:sync:Wa11et", joinKey("ledger", "lock", "sync:Wa11et"))
	assert.Equal(t, "clientid:Wa11et", joinKey("", "clientid", "Wa11et"))
	assert.Equal(t, "ledger", joinKey("ledger"))
}
