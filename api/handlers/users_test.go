package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	er "github.com/taskcloud/mailbridge/internal/errors"
	"github.com/taskcloud/mailbridge/internal/models"
)

type stubUserRepo struct {
	prefsErr error
	user     *models.UserMailbox
}

func (r *stubUserRepo) GetAllUsers(ctx context.Context) ([]*models.UserMailbox, error) {
	return nil, nil
}

func (r *stubUserRepo) GetByChatID(ctx context.Context, chatID string) (*models.UserMailbox, error) {
	return r.user, nil
}

func (r *stubUserRepo) Upsert(ctx context.Context, user *models.UserMailbox) (*models.UserMailbox, error) {
	return user, nil
}

func (r *stubUserRepo) UpdatePrefs(ctx context.Context, chatID string, notifyGenericMail, quietHoursEnabled bool, enabledEvents []string) error {
	return r.prefsErr
}

func (r *stubUserRepo) UpdateWatermark(ctx context.Context, userID string, lastProcessedUID uint32, lastCheckTime time.Time) error {
	return nil
}

func (r *stubUserRepo) Delete(ctx context.Context, chatID string) error {
	return nil
}

func prefsRequest(t *testing.T, repo *stubUserRepo) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.PUT("/v1/users/:chatId/prefs", UpdateUserPrefs(repo))

	body := `{"notifyGenericMail":true,"quietHoursEnabled":false,"enabledEvents":["assigned"]}`
	req := httptest.NewRequest(http.MethodPut, "/v1/users/chat-42/prefs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestUpdateUserPrefs_UnknownUserReturnsNotFound(t *testing.T) {
	// Arrange
	repo := &stubUserRepo{prefsErr: er.ErrUserNotFound}

	// Act
	recorder := prefsRequest(t, repo)

	// Assert
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "user not found")
}

func TestUpdateUserPrefs_Success(t *testing.T) {
	// Arrange
	repo := &stubUserRepo{}

	// Act
	recorder := prefsRequest(t, repo)

	// Assert
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "chat-42")
}
