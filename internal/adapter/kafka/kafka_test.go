package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	fetched := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	result := domain.RiskResult{
		District:      "강남구",
		Score:         48,
		Grade:         domain.GradeD,
		Danger:        4,
		AccidentCount: 1,
	}

	msg, err := serializeToMessage(result.District, fetched, result)
	require.NoError(t, err)

	assert.Equal(t, []byte("강남구"), msg.Key)
	assert.Contains(t, string(msg.Value), `"district":"강남구"`)
	assert.Contains(t, string(msg.Value), `"grade":"D"`)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "fetched_at", msg.Headers[0].Key)
	assert.Equal(t, []byte(fetched.Format(time.RFC3339)), msg.Headers[0].Value)
}
