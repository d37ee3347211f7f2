package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/erinder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_UsesJSONFieldNames(t *testing.T) {
	err := Struct(domain.SendCodeRequest{Email: "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	assert.Contains(t, err.Error(), "field 'email' failed 'email'")
}

func TestStruct_DivesIntoDestinations(t *testing.T) {
	err := Struct(domain.CreateReminderRequest{
		Title:        "Pay rent",
		TriggerAt:    time.Now(),
		Destinations: []domain.Destination{{Channel: "fax", Address: "123"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'channel' failed 'oneof'")
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(domain.VerifyCodeRequest{Email: "a@x.com", Code: "123456"}))
}
