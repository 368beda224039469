package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CheckNotNegative(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	val := -5
	CheckNotNegative(ac, "val", &val, 10)
	assert.Equal(10, val)
	assert.Len(ac.anomalies, 1)

	val = 3
	CheckNotNegative(ac, "val", &val, 10)
	assert.Equal(3, val)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckNotZero(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	val := 0
	CheckNotZero(ac, "val", &val, 7)
	assert.Equal(7, val)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckNotLower(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	val := 1
	CheckNotLower(ac, "val", &val, 2)
	assert.Equal(2, val)
	assert.Len(ac.anomalies, 1)

	val = 4
	CheckNotLower(ac, "val", &val, 2)
	assert.Equal(4, val)
	assert.Len(ac.anomalies, 1)
}

func Test_CheckLen(t *testing.T) {
	assert := assert.New(t)

	ac := newAnomalyCollector()

	val := []string{}
	fallback := []string{"a"}
	CheckLen(ac, "val", &val, fallback)
	assert.Equal(fallback, val)
	assert.Len(ac.anomalies, 1)
}
