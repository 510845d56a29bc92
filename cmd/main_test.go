package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberBindings(t *testing.T) {
	staffID, restID := uuid.New(), uuid.New()

	got, err := subscriberBindings(staffID.String(), restID.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"global", "staff." + staffID.String(), "restaurant." + restID.String()}, got)

	got, err = subscriberBindings("", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"global"}, got)

	_, err = subscriberBindings("not-a-uuid", "")
	assert.Error(t, err)
}
