package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/filevault-backend/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Success(c, map[string]int{"n": 1})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, apperrors.Success, resp.Code)
	assert.Equal(t, map[string]interface{}{"n": float64(1)}, resp.Data)
}

func TestHandleError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	err := apperrors.New(apperrors.ErrFileHasDuplicates, "3 duplicate records").
		WithData(map[string]int64{"referents": 3})
	HandleError(c, err)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, apperrors.ErrFileHasDuplicates, resp.Code)
	assert.Equal(t, "File is referenced by duplicate records: 3 duplicate records", resp.Message)
	assert.Equal(t, map[string]interface{}{"referents": float64(3)}, resp.Data)
}

func TestHandleErrorPlain(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleError(c, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, apperrors.ErrInternalServer, resp.Code)
	assert.Equal(t, "Internal server error", resp.Message)
}
