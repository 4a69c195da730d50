package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opencourt/registrar/internal/bus"
	"github.com/opencourt/registrar/internal/fetch"
	"github.com/opencourt/registrar/internal/storage"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		stage string
		err   error
		want  Kind
	}{
		{"404", bus.StageFetch, fetch.ErrNotFound, KindNotFound},
		{"wrapped 404", bus.StageFetch, fmt.Errorf("fetch: %w", fetch.ErrNotFound), KindNotFound},
		{"missing row", bus.StageParse, storage.ErrNotFound, KindNotFound},
		{"constraint violation", bus.StageParse,
			errors.Join(storage.ErrIntegrity, errors.New("duplicate key")), KindIntegrity},
		{"network timeout", bus.StageFetch, timeoutErr{}, KindTransientIO},
		{"deadline", bus.StageFetch, context.DeadlineExceeded, KindTransientIO},
		{"embedding provider", bus.StageEmbedding, errors.New("provider down"), KindProviderError},
		{"unknown fetch error", bus.StageFetch, errors.New("connection reset"), KindTransientIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.stage, tt.err))
		})
	}
}
