package errortypes

import (
	"errors"
	"testing"

	"github.com/prebid/openrtb/v20/openrtb3"
	"github.com/stretchr/testify/assert"
)

func TestReadCode(t *testing.T) {
	testCases := []struct {
		description  string
		err          error
		expectedCode int
	}{
		{description: "Timeout", err: &Timeout{}, expectedCode: TimeoutErrorCode},
		{description: "BadInput", err: &BadInput{}, expectedCode: BadInputErrorCode},
		{description: "BadServerResponse", err: &BadServerResponse{}, expectedCode: BadServerResponseErrorCode},
		{description: "FailedToUnmarshal", err: &FailedToUnmarshal{}, expectedCode: FailedToUnmarshalErrorCode},
		{description: "Warning", err: &Warning{WarningCode: InvalidPriceGranularityWarningCode}, expectedCode: InvalidPriceGranularityWarningCode},
		{description: "Plain error", err: errors.New("plain"), expectedCode: UnknownErrorCode},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expectedCode, ReadCode(test.err), test.description)
	}
}

func TestErrorMessages(t *testing.T) {
	assert.EqualError(t, &BadInput{Message: "bad input"}, "bad input")
	assert.EqualError(t, &FailedToUnmarshal{Message: "cannot decode"}, "cannot decode")
	assert.EqualError(t, &Warning{Message: "careful"}, "careful")
}

func TestSeverity(t *testing.T) {
	errs := []error{
		&BadInput{Message: "fatal"},
		&Warning{Message: "warning"},
		errors.New("unknown is fatal"),
	}

	assert.Equal(t, []error{errs[0], errs[2]}, FatalOnly(errs))
	assert.Equal(t, []error{errs[1]}, WarningOnly(errs))
	assert.True(t, IsWarning(errs[1]))
	assert.False(t, IsWarning(errs[0]))
}

func TestGetNBRCodeFromError(t *testing.T) {
	testCases := []struct {
		description string
		err         error
		expected    openrtb3.NoBidReason
	}{
		{description: "Timeout", err: &Timeout{}, expected: openrtb3.NoBidInsufficientTime},
		{description: "BadInput", err: &BadInput{}, expected: openrtb3.NoBidInvalidRequest},
		{description: "BadServerResponse", err: &BadServerResponse{}, expected: openrtb3.NoBidTechnicalError},
		{description: "FailedToUnmarshal", err: &FailedToUnmarshal{}, expected: openrtb3.NoBidTechnicalError},
		{description: "Unknown", err: errors.New("other"), expected: openrtb3.NoBidUnknownError},
	}

	for _, test := range testCases {
		assert.Equal(t, test.expected, GetNBRCodeFromError(test.err), test.description)
	}
}

func TestAggregateErrors(t *testing.T) {
	assert.Equal(t, "", NewAggregateErrors("none", nil).Error())

	one := NewAggregateErrors("validation errors", []error{errors.New("first")})
	assert.Equal(t, "validation errors (1 error):\n  1: first\n", one.Error())

	two := NewAggregateErrors("validation errors", []error{errors.New("first"), errors.New("second")})
	assert.Equal(t, "validation errors (2 errors):\n  1: first\n  2: second\n", two.Error())

	var badInput *BadInput
	wrapped := NewAggregateErrors("validation errors", []error{errors.New("first"), &BadInput{Message: "bad"}})
	assert.True(t, errors.As(wrapped, &badInput))
	assert.Equal(t, "bad", badInput.Message)
}
