package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	appConfig "github.com/imedhamdi/mapmarket-backend/internal/config"
	"github.com/imedhamdi/mapmarket-backend/internal/models"
	"github.com/imedhamdi/mapmarket-backend/pkg/logger"
	"github.com/imedhamdi/mapmarket-backend/pkg/utils"
)

func getS3Client() (*s3.Client, error) {
	cfg := appConfig.AppConfig
	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID),
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithEndpointResolverWithOptions(r2Resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg), nil
}

// SendImageMessage POST /messages/image
// Multipart upload path for image messages. Validation, the block gate and
// the localId dedupe all happen before the storage call, so a rejected or
// duplicate send never touches the bucket and never creates a message row.
func SendImageMessage(c *gin.Context) {
	senderID := c.MustGet("userId").(string)

	threadID := c.PostForm("threadId")
	recipientID := c.PostForm("recipientId")
	localID := c.PostForm("localId")
	if recipientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipientId is required"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	defer file.Close()

	contentType, ext, appErr := ValidateImageUpload(header, appConfig.AppConfig.MaxImageBytes)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message, "kind": appErr.Kind, "localId": localID})
		return
	}

	// Block gate and localId dedupe run before the storage call: a blocked
	// sender or a retried duplicate must not leave an orphan bucket object.
	existing, appErr := preflightSend(senderID, recipientID, localID)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message, "kind": appErr.Kind, "localId": localID})
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, gin.H{"message": existing})
		return
	}

	key := fmt.Sprintf("mapmarket/chat/%s%s", utils.GenerateID(), ext)

	client, err := getS3Client()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to init storage client")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to init storage client", "localId": localID})
		return
	}

	cfg := appConfig.AppConfig
	_, err = client.PutObject(c.Request.Context(), &s3.PutObjectInput{
		Bucket:      aws.String(cfg.R2BucketName),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Image upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upload failed", "localId": localID})
		return
	}

	publicURL := cfg.R2PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.r2.dev", cfg.R2BucketName)
	}
	imageURL := fmt.Sprintf("%s/%s", publicURL, key)

	msg := &models.Message{
		SenderID:    senderID,
		RecipientID: recipientID,
		ImageURL:    imageURL,
	}
	persisted, sendErr := persistAndFanOut(senderID, threadID, localID, msg)
	if sendErr != nil {
		c.JSON(sendErr.Code, gin.H{"error": sendErr.Message, "kind": sendErr.Kind, "localId": localID})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": persisted})
}
