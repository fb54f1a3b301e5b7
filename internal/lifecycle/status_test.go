package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pdfchat/internal/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		current model.SessionStatus
		target  model.SessionStatus
		allowed bool
	}{
		{model.SessionActive, model.SessionActive, false},
		{model.SessionActive, model.SessionArchived, true},
		{model.SessionActive, model.SessionDeleted, true},
		{model.SessionArchived, model.SessionActive, true},
		{model.SessionArchived, model.SessionArchived, false},
		{model.SessionArchived, model.SessionDeleted, true},
		{model.SessionDeleted, model.SessionActive, false},
		{model.SessionDeleted, model.SessionArchived, false},
		{model.SessionDeleted, model.SessionDeleted, false},
	}

	for _, c := range cases {
		t.Run(string(c.current)+"_to_"+string(c.target), func(t *testing.T) {
			assert.Equal(t, c.allowed, CanTransition(c.current, c.target))
		})
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	assert.False(t, CanTransition(model.SessionStatus("FROZEN"), model.SessionActive))
	assert.False(t, CanTransition(model.SessionActive, model.SessionStatus("FROZEN")))
}
