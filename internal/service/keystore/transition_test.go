package keystore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/keyserver-api/internal/domain/entity"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status entity.KeyStatus
		idle   time.Duration
		want   Transition
	}{
		{name: "fresh unblocked", status: entity.KeyStatusUnblocked, idle: 0, want: TransitionNone},
		{name: "fresh blocked", status: entity.KeyStatusBlocked, idle: 0, want: TransitionNone},
		{name: "blocked 59s", status: entity.KeyStatusBlocked, idle: 59 * time.Second, want: TransitionNone},
		{name: "blocked exactly 60s", status: entity.KeyStatusBlocked, idle: BlockTimeout, want: TransitionUnblock},
		{name: "blocked 61s", status: entity.KeyStatusBlocked, idle: 61 * time.Second, want: TransitionUnblock},
		{name: "unblocked 61s", status: entity.KeyStatusUnblocked, idle: 61 * time.Second, want: TransitionNone},
		{name: "unblocked 299s", status: entity.KeyStatusUnblocked, idle: 299 * time.Second, want: TransitionNone},
		{name: "unblocked exactly 300s", status: entity.KeyStatusUnblocked, idle: ExpiryTimeout, want: TransitionExpire},
		{name: "blocked 301s expires instead of unblocking", status: entity.KeyStatusBlocked, idle: 301 * time.Second, want: TransitionExpire},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := entity.KeyRecord{
				Value:       "k",
				Status:      tt.status,
				LastTouched: now.Add(-tt.idle),
			}
			assert.Equal(t, tt.want, Evaluate(now, rec))
		})
	}
}

func TestTransition_String(t *testing.T) {
	assert.Equal(t, "none", TransitionNone.String())
	assert.Equal(t, "unblock", TransitionUnblock.String())
	assert.Equal(t, "expire", TransitionExpire.String())
}
