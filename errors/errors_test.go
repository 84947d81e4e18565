package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToCode(t *testing.T) {
	req := require.New(t)
	badger := stderrors.New("value log full")

	req.Equal(CodeValidation, ToCode(Validation("content is empty")))
	req.Equal(CodeValidation, ToCode(ErrUnknownCommand))
	req.Equal(CodeUnauthorized, ToCode(Unauthorized("connection is not joined")))
	req.Equal(CodeStoreUnavailable, ToCode(StoreUnavailable(badger)))
	req.Equal(CodeInternal, ToCode(badger))
}

func TestStoreUnavailable_Keeps_Cause(t *testing.T) {
	req := require.New(t)
	cause := stderrors.New("disk gone")

	err := StoreUnavailable(cause)

	req.ErrorIs(err, ErrStoreUnavailable)
	req.ErrorIs(err, cause)
}

func TestMapToHTTPStatus(t *testing.T) {
	req := require.New(t)
	req.Equal(http.StatusBadRequest, MapToHTTPStatus(Validation("x")))
	req.Equal(http.StatusUnauthorized, MapToHTTPStatus(ErrUnauthorized))
	req.Equal(http.StatusServiceUnavailable, MapToHTTPStatus(StoreUnavailable(stderrors.New("x"))))
	req.Equal(http.StatusInternalServerError, MapToHTTPStatus(ErrWorkerPanic))
}
