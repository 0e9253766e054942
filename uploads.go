package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/models"
	"bitbucket.org/mmdatafocus/factory_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

type uploadContext struct {
	EntityType  string `json:"entityType"`
	BatchId     int    `json:"batchId"`
	BatchNo     string `json:"batchNo"`
	ReferenceID int    `json:"referenceId"`
}

type uploadSignRequest struct {
	FileName string        `json:"fileName"`
	MimeType string        `json:"mimeType"`
	Size     int64         `json:"size"`
	Context  uploadContext `json:"context"`
}

type uploadCompleteRequest struct {
	ObjectKey string        `json:"objectKey"`
	MimeType  string        `json:"mimeType"`
	Context   uploadContext `json:"context"`
}

type uploadSignResponse struct {
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ObjectKey string            `json:"objectKey"`
	AccessURL string            `json:"accessUrl"`
	ExpiresAt string            `json:"expiresAt"`
}

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var workbookMimeTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel": true,
	"text/csv":                 true,
}

func signUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		var req uploadSignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		if req.FileName == "" || req.MimeType == "" || req.Size <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fileName, mimeType and size are required"})
			return
		}
		if req.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		entity := normalizeEntity(req.Context.EntityType, "imports")
		if !workbookMimeTypes[req.MimeType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		ext := strings.ToLower(filepath.Ext(req.FileName))
		if ext == "" {
			ext = extensionFromMimeType(req.MimeType)
		}
		if ext == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file extension is required"})
			return
		}

		objectKey := path.Join(businessId, entity, uuid.New().String()+ext)
		if utils.GetStorageProvider() != utils.StorageProviderGCS {
			c.JSON(http.StatusBadRequest, gin.H{"error": "storage provider not supported"})
			return
		}

		signed, err := utils.SignUpload(c.Request.Context(), objectKey, req.MimeType, 15*time.Minute)
		if err != nil {
			logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			message := "failed to sign upload"
			if !strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
				message = fmt.Sprintf("failed to sign upload: %v", err)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": message})
			return
		}

		logger.WithFields(logrus.Fields{
			"tenant_id":  businessId,
			"mime_type":  req.MimeType,
			"size":       req.Size,
			"object_key": objectKey,
		}).Info("[upload.sign]")

		c.JSON(http.StatusOK, gin.H{
			"data": uploadSignResponse{
				UploadURL: signed.UploadURL,
				Method:    signed.Method,
				Headers:   signed.Headers,
				ObjectKey: signed.ObjectKey,
				AccessURL: signed.AccessURL,
				ExpiresAt: signed.ExpiresAt.UTC().Format(time.RFC3339),
			},
		})
	}
}

// completeUploadHandler runs the import for a workbook the browser pushed
// straight to GCS. The entity type in the sign request decides the parser.
func completeUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		requestID := requestIDFromHeaders(c)

		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		var req uploadCompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		// clients echo back either the objectKey or the accessUrl from the sign step
		objectKey := utils.ExtractObjectKeyFromURL(req.ObjectKey)
		if objectKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "objectKey is required"})
			return
		}
		if !strings.HasPrefix(objectKey, businessId+"/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object key"})
			return
		}

		ctx := c.Request.Context()
		data, err := downloadObject(c, objectKey)
		if err != nil {
			logUploadError(logger, err, utils.GetStorageProvider(), requestID)
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}

		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "workbook could not be opened: " + err.Error()})
			return
		}
		defer f.Close()

		entity := normalizeEntity(req.Context.EntityType, "")
		fileName := path.Base(objectKey)

		switch {
		case strings.Contains(entity, "vin"):
			plans, err := parseVinPlanSheet(f)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			batchId := req.Context.BatchId
			if batchId <= 0 {
				batchId = req.Context.ReferenceID
			}
			if batchId <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "batchId is required for a vin plan import"})
				return
			}
			created, err := models.AddVinPlans(ctx, batchId, plans)
			if err != nil {
				apiError(c, err)
				return
			}
			logger.WithFields(logrus.Fields{
				"object_key": objectKey,
				"rows":       len(created),
			}).Info("[upload.complete]")
			c.JSON(http.StatusOK, gin.H{"data": gin.H{
				"success": true,
				"errors":  []models.ImportRowError{},
				"stats":   gin.H{"total_rows": len(plans), "imported_rows": len(created)},
			}})
			return
		default:
			lines, err := parsePackingListSheet(f)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result, err := models.ImportPackingList(ctx, &models.PackingListImportInput{
				FileName:       fileName,
				DefaultBatchNo: req.Context.BatchNo,
				Lines:          lines,
			})
			if err != nil {
				apiError(c, err)
				return
			}
			logger.WithFields(logrus.Fields{
				"object_key": objectKey,
				"rows":       result.Stats.ImportedRows,
			}).Info("[upload.complete]")
			c.JSON(http.StatusOK, gin.H{"data": result})
			return
		}
	}
}

// importPackingListHandler takes the workbook in the request itself, for
// floor terminals that cannot do the signed two-step.
func importPackingListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if int64(len(data)) > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "workbook could not be opened: " + err.Error()})
			return
		}
		defer f.Close()

		lines, err := parsePackingListSheet(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := models.ImportPackingList(c.Request.Context(), &models.PackingListImportInput{
			FileName:        fileHeader.Filename,
			DefaultBatchNo:  c.PostForm("batch_no"),
			AutoCreateItems: c.PostForm("auto_create_items") == "true",
			Lines:           lines,
		})
		if err != nil {
			apiError(c, err)
			return
		}

		archiveWorkbook(c, logger, businessId, "packing-list", fileHeader.Filename, data)

		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func importVinPlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business id is required"})
			return
		}

		batchId, err := strconv.Atoi(c.PostForm("batch_id"))
		if err != nil || batchId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "batch_id is required"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if int64(len(data)) > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "workbook could not be opened: " + err.Error()})
			return
		}
		defer f.Close()

		plans, err := parseVinPlanSheet(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// The plan append is all or nothing; a duplicate VIN rejects the
		// whole sheet rather than planning half a batch.
		created, err := models.AddVinPlans(c.Request.Context(), batchId, plans)
		if err != nil {
			apiError(c, err)
			return
		}

		archiveWorkbook(c, logger, businessId, "vin-plan", fileHeader.Filename, data)

		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"success": true,
			"errors":  []models.ImportRowError{},
			"stats":   gin.H{"total_rows": len(plans), "imported_rows": len(created)},
		}})
	}
}

func uploadObjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		objectKey := strings.TrimSpace(c.Query("key"))
		if objectKey == "" || strings.Contains(objectKey, "..") || strings.HasPrefix(objectKey, "/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
			return
		}

		if utils.GetStorageProvider() != utils.StorageProviderGCS {
			c.JSON(http.StatusBadRequest, gin.H{"error": "storage provider not supported"})
			return
		}

		client, err := utils.GetGCSClient(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage client error"})
			return
		}
		defer client.Close()

		bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
		if bucket == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "GCS_BUCKET is required"})
			return
		}
		obj := client.Bucket(bucket).Object(objectKey)
		attrs, err := obj.Attrs(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		reader, err := obj.NewReader(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
			return
		}
		defer reader.Close()

		if attrs != nil && attrs.ContentType != "" {
			c.Writer.Header().Set("Content-Type", attrs.ContentType)
		}
		if attrs != nil && attrs.Size > 0 {
			c.Writer.Header().Set("Content-Length", fmt.Sprintf("%d", attrs.Size))
		}
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, reader)
	}
}

func downloadObject(c *gin.Context, objectKey string) ([]byte, error) {
	if utils.GetStorageProvider() != utils.StorageProviderGCS {
		return nil, errors.New("storage provider not supported")
	}
	client, err := utils.GetGCSClient(c.Request.Context())
	if err != nil {
		return nil, err
	}
	defer client.Close()

	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	reader, err := client.Bucket(bucket).Object(objectKey).NewReader(c.Request.Context())
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxUploadSizeBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxUploadSizeBytes {
		return nil, errors.New("file size exceeds 5MB limit")
	}
	return data, nil
}

// archiveWorkbook keeps the original sheet for audit. Failures only warn;
// the import itself already committed.
func archiveWorkbook(c *gin.Context, logger *logrus.Logger, businessId string, entity string, fileName string, data []byte) {
	if utils.GetStorageProvider() != utils.StorageProviderGCS {
		return
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".xlsx"
	}
	objectKey := path.Join(businessId, "imports", entity, uuid.New().String()+ext)
	if err := utils.UploadBytesToGCS(c.Request.Context(), objectKey, data,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
		logger.WithFields(logrus.Fields{
			"tenant_id":  businessId,
			"object_key": objectKey,
		}).Warn("workbook archive failed: " + err.Error())
		return
	}
	logger.WithFields(logrus.Fields{
		"tenant_id":  businessId,
		"object_key": objectKey,
		"file_name":  fileName,
	}).Info("[upload.archive]")
}

// parsePackingListSheet reads the first sheet. The header row names the
// columns; order does not matter and unknown columns are ignored.
func parsePackingListSheet(f *excelize.File) ([]*models.PackingListLine, error) {
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.New("workbook has no data rows")
	}

	col := map[string]int{}
	for i, header := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(header))
		key = strings.ReplaceAll(key, " ", "_")
		col[key] = i
	}
	for _, required := range []string{"sku", "quantity", "location"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column: %s", required)
		}
	}

	cell := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var lines []*models.PackingListLine
	for i, row := range rows[1:] {
		sku := cell(row, "sku")
		rawQty := cell(row, "quantity")
		if sku == "" && rawQty == "" {
			continue
		}
		qty, err := utils.ParseDecimal(rawQty)
		if err != nil {
			qty = decimal.Zero
		}
		lines = append(lines, &models.PackingListLine{
			Row:      i + 2,
			Sku:      sku,
			Name:     cell(row, "name"),
			Quantity: qty,
			Location: cell(row, "location"),
			BatchNo:  cell(row, "batch_no"),
		})
	}
	if len(lines) == 0 {
		return nil, errors.New("workbook has no data rows")
	}
	return lines, nil
}

func parseVinPlanSheet(f *excelize.File) ([]*models.NewVinPlan, error) {
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.New("workbook has no data rows")
	}

	col := map[string]int{}
	for i, header := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(header))
		key = strings.ReplaceAll(key, " ", "_")
		col[key] = i
	}
	if _, ok := col["vin"]; !ok {
		return nil, errors.New("missing column: vin")
	}

	cell := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var plans []*models.NewVinPlan
	for _, row := range rows[1:] {
		vin := cell(row, "vin")
		if vin == "" {
			continue
		}
		plans = append(plans, &models.NewVinPlan{
			Vin:     vin,
			CarCode: cell(row, "car_code"),
		})
	}
	if len(plans) == 0 {
		return nil, errors.New("workbook has no data rows")
	}
	return plans, nil
}

func normalizeEntity(primary, fallback string) string {
	value := strings.TrimSpace(primary)
	if value == "" {
		value = strings.TrimSpace(fallback)
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, " ", "_")
	value = sanitizeSegment(value)
	return value
}

func sanitizeSegment(input string) string {
	var out strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	case "application/vnd.ms-excel":
		return ".xls"
	case "text/csv":
		return ".csv"
	default:
		return ""
	}
}

func logUploadError(logger *logrus.Logger, err error, provider string, requestID string) {
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"provider":   provider,
		"request_id": requestID,
	}).Error("[upload.error]")
}

func requestIDFromHeaders(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-Correlation-Id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetHeader("X-Request-Id")); id != "" {
		return id
	}
	return fmt.Sprintf("upload-%d", time.Now().UnixNano())
}

func registerUploadRoutes(api *gin.RouterGroup) {
	api.POST("/imports/packing-list", importPackingListHandler())
	api.POST("/imports/vin-plan", importVinPlanHandler())
	api.POST("/uploads/sign", signUploadHandler())
	api.POST("/uploads/complete", completeUploadHandler())
	api.GET("/uploads/object", uploadObjectHandler())
}
