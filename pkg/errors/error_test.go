package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidParameter, err.Code)
	suite.Equal("invalid parameter", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeDataNotFound, "no cache entry for %s", "AAPL.O")
	suite.NotNil(err)
	suite.Equal(ErrCodeDataNotFound, err.Code)
	suite.Equal("no cache entry for AAPL.O", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestWrapError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeStoreReadFailed, "failed to read cache entry", cause)
	suite.NotNil(err)
	suite.Equal(ErrCodeStoreReadFailed, err.Code)
	suite.Equal("failed to read cache entry", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("underlying error")
	err := Wrapf(ErrCodeHistoryFetchFailed, cause, "history fetch failed for %s", "MSFT.O")
	suite.NotNil(err)
	suite.Equal(ErrCodeHistoryFetchFailed, err.Code)
	suite.Equal("history fetch failed for MSFT.O", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestErrorString() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	suite.Equal("[100] invalid parameter", err.Error())
}

func (suite *ErrorTestSuite) TestErrorStringWithCause() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeDataNotFound, "data not found", cause)
	suite.Equal("[200] data not found: underlying error", err.Error())
}

func (suite *ErrorTestSuite) TestUnwrap() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeDataNotFound, "data not found", cause)
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestUnwrapNil() {
	err := New(ErrCodeInvalidParameter, "invalid parameter")
	suite.Nil(err.Unwrap())
}

func (suite *ErrorTestSuite) TestGetCode() {
	err := New(ErrCodeSessionNotOpen, "session not open")
	suite.Equal(ErrCodeSessionNotOpen, GetCode(err))
}

func (suite *ErrorTestSuite) TestGetCodeWrappedInStandardError() {
	inner := New(ErrCodeDataNotFound, "data not found")
	wrapped := fmt.Errorf("load failed: %w", inner)
	suite.Equal(ErrCodeDataNotFound, GetCode(wrapped))
}

func (suite *ErrorTestSuite) TestGetCodePlainError() {
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("plain error")))
}

func (suite *ErrorTestSuite) TestHasCode() {
	err := New(ErrCodeUnknownField, "unknown field")
	suite.True(HasCode(err, ErrCodeUnknownField))
	suite.False(HasCode(err, ErrCodeDataNotFound))
}

func (suite *ErrorTestSuite) TestIsAndAs() {
	cause := New(ErrCodeQueryFailed, "query failed")
	wrapped := Wrap(ErrCodeStoreReadFailed, "read failed", cause)

	suite.True(Is(wrapped, cause))

	var target *Error
	suite.True(As(wrapped, &target))
	suite.Equal(ErrCodeStoreReadFailed, target.Code)
}
