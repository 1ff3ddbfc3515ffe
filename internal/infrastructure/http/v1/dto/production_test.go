package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

func TestReopenAllRequest_Stages(t *testing.T) {
	tests := []struct {
		stage string
		valid bool
	}{
		{"awaiting_packaging", true},
		{"ship_to_a", true},
		{"awaiting_inspection", false},
		{"stock", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&ReopenAllRequest{Stage: tt.stage})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
