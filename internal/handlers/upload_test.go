package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appConfig "github.com/imedhamdi/mapmarket-backend/internal/config"
	"github.com/imedhamdi/mapmarket-backend/internal/database"
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func postImageMultipart(t *testing.T, userID string, fields map[string]string, image []byte) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		assert.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("image", "photo.png")
	assert.NoError(t, err)
	fw.Write(image)
	mw.Close()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/api/messages/image", &buf)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	c.Set("userId", userID)
	return w, c
}

// No storage client is configured in these tests: every path under test must
// answer before the upload step, so reaching the bucket would itself be the
// regression.
func setupImageTest() {
	SetupTestDB()
	gin.SetMode(gin.TestMode)
	appConfig.AppConfig = &appConfig.Config{MaxImageBytes: 2 << 20}
}

func TestSendImageMessage_BlockedSenderStopsBeforeUpload(t *testing.T) {
	setupImageTest()

	createTestUser("me_iblk")
	createTestUser("u1_iblk")
	database.DB.Create(&models.Thread{ID: "th_iblk", BuyerID: "me_iblk", SellerID: "u1_iblk"})
	database.DB.Create(&models.UserBlock{BlockerID: "u1_iblk", BlockedID: "me_iblk"})

	w, c := postImageMultipart(t, "me_iblk", map[string]string{
		"threadId":    "th_iblk",
		"recipientId": "u1_iblk",
		"localId":     uuid.New().String(),
	}, pngBytes(1024))
	SendImageMessage(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "BLOCKED")

	var count int64
	database.DB.Model(&models.Message{}).Where("sender_id = ?", "me_iblk").Count(&count)
	assert.Zero(t, count)
}

func TestSendImageMessage_DuplicateLocalIDReturnsExistingRow(t *testing.T) {
	setupImageTest()

	createTestUser("me_idup")
	createTestUser("u1_idup")
	database.DB.Create(&models.Thread{ID: "th_idup", BuyerID: "me_idup", SellerID: "u1_idup"})

	// The first attempt landed; the client timed out and retries the upload.
	localID := uuid.New().String()
	persisted := models.Message{
		ThreadID:        "th_idup",
		SenderID:        "me_idup",
		RecipientID:     "u1_idup",
		ImageURL:        "https://cdn.example.com/mapmarket/chat/img1.png",
		Status:          models.StatusSent,
		ClientMessageID: &localID,
	}
	database.DB.Create(&persisted)

	w, c := postImageMultipart(t, "me_idup", map[string]string{
		"threadId":    "th_idup",
		"recipientId": "u1_idup",
		"localId":     localID,
	}, pngBytes(1024))
	SendImageMessage(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Message models.Message `json:"message"`
	}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, persisted.ID, response.Message.ID, "retry answered by the original row")
	assert.Equal(t, persisted.ImageURL, response.Message.ImageURL)

	var count int64
	database.DB.Model(&models.Message{}).Where("client_message_id = ?", localID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestSendImageMessage_SelfSendRejectedBeforeUpload(t *testing.T) {
	setupImageTest()

	createTestUser("me_iself")

	w, c := postImageMultipart(t, "me_iself", map[string]string{
		"recipientId": "me_iself",
		"localId":     uuid.New().String(),
	}, pngBytes(1024))
	SendImageMessage(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
