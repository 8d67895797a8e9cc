package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCategorizeJob(t *testing.T) {
	j, err := DecodeCategorizeJob([]byte(`{"session_id":"01J0000000000000000000000A","attempt":2}`))
	require.NoError(t, err)
	assert.Equal(t, CategorizeJob{SessionID: "01J0000000000000000000000A", Attempt: 2}, j)

	_, err = DecodeCategorizeJob([]byte(`{"session_id":"  "}`))
	assert.Error(t, err)
	_, err = DecodeCategorizeJob([]byte(`not json`))
	assert.Error(t, err)
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "categorize_jobs.retry", RetryQueue("categorize_jobs"))
	assert.Equal(t, "categorize_jobs.dlq", DeadQueue("categorize_jobs"))
}
