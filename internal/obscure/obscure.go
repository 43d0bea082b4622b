package obscure

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// 失败分类：ErrBadPayload/ErrBadPercentage/ErrEmptyPreview 属于输入校验，
// 在任何网络调用之前返回；上传失败原样透传（带上下文包装）。
var (
	ErrBadPayload    = errors.New("document payload is not a valid pdf data uri")
	ErrBadPercentage = errors.New("reveal percentage must be between 0 and 100")
	// PDF 页树至少要有一页，空预览文档无法序列化，0% 直接拒绝。
	ErrEmptyPreview = errors.New("reveal percentage of 0 would produce an empty preview")
)

// ObjectStore 是流程需要的最小存储接口，便于测试注入假实现。
type ObjectStore interface {
	UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (*minio.UploadInfo, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// Result 返回两个产物的对象键与页数信息。
type Result struct {
	OriginalKey  string `json:"original_key"`
	ProcessedKey string `json:"processed_key"`
	TotalPages   int    `json:"total_pages"`
	PreviewPages int    `json:"preview_pages"`
}

// Service 执行文档遮挡流程：原件与按比例截断的预览各存一份。
// 上传严格串行（先原件后预览），预览失败时补偿删除原件。
type Service struct {
	store  ObjectStore
	logger *slog.Logger

	// trim/pageCount 默认走 pdfcpu；测试可注入替身。
	trim      func(src []byte, pagesToKeep int) ([]byte, error)
	pageCount func(src []byte) (int, error)
	now       func() time.Time
}

// NewService 构造遮挡流程服务。
func NewService(store ObjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		logger:    logger,
		trim:      trimLeadingPages,
		pageCount: countPages,
		now:       time.Now,
	}
}

// PagesToKeep 计算预览保留的页数：ceil(total * percentage / 100)。
func PagesToKeep(totalPages, percentage int) int {
	return (totalPages*percentage + 99) / 100
}

// DecodeDataURI 解析 data:application/pdf;base64,... 形式的负载。
// 非法负载在任何网络调用之前失败。
func DecodeDataURI(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "data:") {
		return nil, ErrBadPayload
	}
	meta, encoded, found := strings.Cut(payload[len("data:"):], ",")
	if !found {
		return nil, ErrBadPayload
	}
	mediaType, _, _ := strings.Cut(meta, ";")
	if !strings.EqualFold(strings.TrimSpace(mediaType), "application/pdf") {
		return nil, ErrBadPayload
	}
	if !strings.Contains(meta, "base64") {
		return nil, ErrBadPayload
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrBadPayload
	}
	if len(data) == 0 {
		return nil, ErrBadPayload
	}
	return data, nil
}

// Process 执行完整流程：校验 → 解析页数 → 上传原件 → 截断 → 上传预览。
// 预览产出或上传失败时，尽力删除已上传的原件后再返回错误；
// 删除失败只记日志，不重试也不升级。
func (s *Service) Process(ctx context.Context, ownerID, cardID uint, payload string, percentage int) (*Result, error) {
	if percentage < 0 || percentage > 100 {
		return nil, ErrBadPercentage
	}

	data, err := DecodeDataURI(payload)
	if err != nil {
		return nil, err
	}

	totalPages, err := s.pageCount(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadPayload, err)
	}

	pagesToKeep := PagesToKeep(totalPages, percentage)
	if pagesToKeep == 0 {
		return nil, ErrEmptyPreview
	}

	ts := s.now().Unix()
	originalKey := fmt.Sprintf("documents/%d/%d-original-%d.pdf", ownerID, cardID, ts)
	processedKey := fmt.Sprintf("documents/%d/%d-processed-%d.pdf", ownerID, cardID, ts)

	if _, err := s.store.UploadBytes(ctx, originalKey, data, "application/pdf"); err != nil {
		return nil, fmt.Errorf("upload original document: %w", err)
	}

	preview, err := s.trim(data, pagesToKeep)
	if err != nil {
		s.compensate(ctx, originalKey)
		return nil, fmt.Errorf("build preview document: %w", err)
	}

	if _, err := s.store.UploadBytes(ctx, processedKey, preview, "application/pdf"); err != nil {
		s.compensate(ctx, originalKey)
		return nil, fmt.Errorf("upload preview document: %w", err)
	}

	return &Result{
		OriginalKey:  originalKey,
		ProcessedKey: processedKey,
		TotalPages:   totalPages,
		PreviewPages: pagesToKeep,
	}, nil
}

func (s *Service) compensate(ctx context.Context, originalKey string) {
	if err := s.store.DeleteObject(ctx, originalKey); err != nil {
		s.logger.Error("compensating delete of original document failed",
			slog.String("object_key", originalKey),
			slog.Any("error", err),
		)
	}
}

// trimLeadingPages 复制源文档的前 pagesToKeep 页，页序与内容保持不变。
func trimLeadingPages(src []byte, pagesToKeep int) ([]byte, error) {
	selected := []string{fmt.Sprintf("1-%d", pagesToKeep)}
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(src), &buf, selected, pdfConfiguration()); err != nil {
		return nil, fmt.Errorf("trim pdf to %d pages: %w", pagesToKeep, err)
	}
	return buf.Bytes(), nil
}

func countPages(src []byte) (int, error) {
	return api.PageCount(bytes.NewReader(src), pdfConfiguration())
}

func pdfConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
