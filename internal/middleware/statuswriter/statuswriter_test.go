package statuswriter_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/authward/authward/internal/middleware/statuswriter"
)

func TestRecorder_ExplicitStatus(t *testing.T) {
	rec := statuswriter.Wrap(httptest.NewRecorder())

	rec.WriteHeader(http.StatusTeapot)
	rec.WriteHeader(http.StatusOK) // later writes must not overwrite

	assert.Equal(t, http.StatusTeapot, rec.Status())
}

func TestRecorder_ImplicitOK(t *testing.T) {
	rec := statuswriter.Wrap(httptest.NewRecorder())

	_, err := rec.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Status())
}

func TestRecorder_NothingWritten(t *testing.T) {
	rec := statuswriter.Wrap(httptest.NewRecorder())

	assert.Equal(t, http.StatusOK, rec.Status())
}
