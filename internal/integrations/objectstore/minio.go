package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"slide-master/internal/domain"
)

// DefaultLinkTTL is how long a presigned download link stays valid.
const DefaultLinkTTL = 24 * time.Hour

// objectAPI is the subset of *minio.Client used here.
type objectAPI interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// LinkSender posts a message carrying a download button.
type LinkSender interface {
	SendLink(ctx context.Context, chatID, text, label, link string) error
}

// Deliverer is the document delivery tried before falling back to a link.
type Deliverer interface {
	Deliver(ctx context.Context, chatID string, a domain.Artifact, caption string) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	LinkTTL   time.Duration
	// Label is the text of the download button.
	Label string
}

// NewMinioClient connects to MinIO and makes sure the bucket exists.
func NewMinioClient(ctx context.Context, cfg Config) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("objectstore: bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("objectstore: make bucket: %w", err)
		}
	}
	return client, nil
}

// LinkDelivery uploads decks to a bucket and sends a presigned link to the
// chat. With a primary deliverer it only takes over when the primary rejects
// the upload as too large.
type LinkDelivery struct {
	api     objectAPI
	sender  LinkSender
	primary Deliverer
	bucket  string
	ttl     time.Duration
	label   string
	log     *slog.Logger
}

func NewLinkDelivery(api objectAPI, sender LinkSender, cfg Config, primary Deliverer, log *slog.Logger) (*LinkDelivery, error) {
	if api == nil {
		return nil, errors.New("objectstore: api must not be nil")
	}
	if sender == nil {
		return nil, errors.New("objectstore: link sender must not be nil")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("objectstore: bucket is required")
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = DefaultLinkTTL
	}
	if cfg.Label == "" {
		cfg.Label = "Download"
	}
	if log == nil {
		log = slog.Default()
	}
	return &LinkDelivery{
		api:     api,
		sender:  sender,
		primary: primary,
		bucket:  cfg.Bucket,
		ttl:     cfg.LinkTTL,
		label:   cfg.Label,
		log:     log,
	}, nil
}

func (d *LinkDelivery) Deliver(ctx context.Context, chatID string, a domain.Artifact, caption string) error {
	if d.primary != nil {
		err := d.primary.Deliver(ctx, chatID, a, caption)
		if err == nil || !tooLarge(err) {
			return err
		}
		d.log.Info("document rejected as too large, sending link", "chat_id", chatID, "size", a.Size)
	}

	key := objectKey(chatID, a.Name)
	_, err := d.api.FPutObject(ctx, d.bucket, key, a.Path, minio.PutObjectOptions{
		ContentType:        a.ContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(key)),
	})
	if err != nil {
		return fmt.Errorf("objectstore: upload %q: %w", key, err)
	}

	link, err := d.api.PresignedGetObject(ctx, d.bucket, key, d.ttl, nil)
	if err != nil {
		d.remove(ctx, key)
		return fmt.Errorf("objectstore: presign %q: %w", key, err)
	}
	if err := d.sender.SendLink(ctx, chatID, caption, d.label, link.String()); err != nil {
		d.remove(ctx, key)
		return fmt.Errorf("objectstore: send link: %w", err)
	}
	return nil
}

func (d *LinkDelivery) remove(ctx context.Context, key string) {
	if err := d.api.RemoveObject(context.WithoutCancel(ctx), d.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		d.log.Warn("failed to remove undelivered object", "key", key, "err", err)
	}
}

func objectKey(chatID, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "deck.pptx"
	}
	chatID = strings.Trim(strings.ReplaceAll(chatID, "/", "_"), ".")
	if chatID == "" {
		chatID = "unknown"
	}
	return "decks/" + chatID + "/" + name
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func tooLarge(err error) bool {
	var sc httpStatusCoder
	return errors.As(err, &sc) && sc.HTTPStatusCode() == http.StatusRequestEntityTooLarge
}
