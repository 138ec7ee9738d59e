package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("boom")).Build()
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Equal(t, "boom", ee.Error())
}

func TestBuilderContext(t *testing.T) {
	t.Parallel()

	ee := Newf("upload of %s failed", "key").
		Component("objectstore").
		Category(CategoryStorageUpload).
		Priority(PriorityHigh).
		Context("key", "sensor_data/x").
		Build()

	assert.Equal(t, "objectstore", ee.Component)
	assert.Equal(t, CategoryStorageUpload, ee.Category)
	assert.Equal(t, PriorityHigh, ee.Priority)

	ctx := ee.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, "sensor_data/x", ctx["key"])

	// mutating the copy must not leak back into the error
	ctx["key"] = "other"
	assert.Equal(t, "sensor_data/x", ee.GetContext()["key"])
}

func TestInvalidPriorityFallsBack(t *testing.T) {
	t.Parallel()

	ee := Newf("x").Priority("urgent!!").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestCategoryMatching(t *testing.T) {
	t.Parallel()

	notFound := NotFoundError("record", "42")
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsValidation(notFound))

	// category checks must survive wrapping
	wrapped := fmt.Errorf("outer: %w", notFound)
	assert.True(t, IsNotFound(wrapped))

	validation := ValidationError("record carries neither payload nor file")
	assert.True(t, IsValidation(validation))

	resolution := ResolutionError("entity %q not registered", "Weather Sensor")
	assert.True(t, IsResolution(resolution))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	conn := Newf("dial tcp: connection refused").Category(CategoryStorageConnection).Build()
	auth := Newf("access denied").Category(CategoryStorageAuth).Build()

	assert.True(t, IsRetryable(conn))
	assert.False(t, IsRetryable(auth))
	assert.False(t, IsRetryable(NewStd("plain")))
}
