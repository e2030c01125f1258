package objectstore

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"

	"slide-master/internal/domain"
)

type fakeObjects struct {
	putErr     error
	presignErr error

	lastKey     string
	lastPath    string
	lastOpts    minio.PutObjectOptions
	lastExpires time.Duration
	removed     []string
}

func (f *fakeObjects) FPutObject(_ context.Context, _, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.lastKey, f.lastPath, f.lastOpts = objectName, filePath, opts
	return minio.UploadInfo{Key: objectName}, f.putErr
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, objectName string, expires time.Duration, _ url.Values) (*url.URL, error) {
	f.lastExpires = expires
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	return url.Parse("https://files.example/" + bucket + "/" + objectName + "?X-Amz-Signature=abc")
}

func (f *fakeObjects) RemoveObject(_ context.Context, _, objectName string, _ minio.RemoveObjectOptions) error {
	f.removed = append(f.removed, objectName)
	return nil
}

type fakeSender struct {
	err       error
	lastChat  string
	lastText  string
	lastLabel string
	lastLink  string
}

func (f *fakeSender) SendLink(_ context.Context, chatID, text, label, link string) error {
	f.lastChat, f.lastText, f.lastLabel, f.lastLink = chatID, text, label, link
	return f.err
}

type statusErr int

func (e statusErr) Error() string       { return http.StatusText(int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

type fakePrimary struct {
	err   error
	calls int
}

func (f *fakePrimary) Deliver(context.Context, string, domain.Artifact, string) error {
	f.calls++
	return f.err
}

var testArtifact = domain.Artifact{
	Path:        "/tmp/decks/deck_42_x.pptx",
	Name:        "deck_42_x.pptx",
	ContentType: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	Size:        2048,
}

func TestNewLinkDelivery_Validation(t *testing.T) {
	_, err := NewLinkDelivery(nil, &fakeSender{}, Config{Bucket: "b"}, nil, nil)
	require.Error(t, err)
	_, err = NewLinkDelivery(&fakeObjects{}, nil, Config{Bucket: "b"}, nil, nil)
	require.Error(t, err)
	_, err = NewLinkDelivery(&fakeObjects{}, &fakeSender{}, Config{}, nil, nil)
	require.ErrorContains(t, err, "bucket")
}

func TestLinkDelivery_UploadsAndSendsLink(t *testing.T) {
	objs, sender := &fakeObjects{}, &fakeSender{}
	d, err := NewLinkDelivery(objs, sender, Config{Bucket: "decks"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), "42", testArtifact, "Black holes"))
	require.Equal(t, "decks/42/deck_42_x.pptx", objs.lastKey)
	require.Equal(t, testArtifact.Path, objs.lastPath)
	require.Equal(t, testArtifact.ContentType, objs.lastOpts.ContentType)
	require.Contains(t, objs.lastOpts.ContentDisposition, `filename="deck_42_x.pptx"`)
	require.Equal(t, DefaultLinkTTL, objs.lastExpires)

	require.Equal(t, "42", sender.lastChat)
	require.Equal(t, "Black holes", sender.lastText)
	require.Equal(t, "Download", sender.lastLabel)
	require.Contains(t, sender.lastLink, "X-Amz-Signature")
	require.Empty(t, objs.removed)
}

func TestLinkDelivery_Failures(t *testing.T) {
	objs := &fakeObjects{putErr: errors.New("disk full")}
	d, _ := NewLinkDelivery(objs, &fakeSender{}, Config{Bucket: "decks"}, nil, nil)
	require.ErrorContains(t, d.Deliver(context.Background(), "1", testArtifact, ""), "upload")
	require.Empty(t, objs.removed)

	objs = &fakeObjects{presignErr: errors.New("bad creds")}
	d, _ = NewLinkDelivery(objs, &fakeSender{}, Config{Bucket: "decks"}, nil, nil)
	require.ErrorContains(t, d.Deliver(context.Background(), "1", testArtifact, ""), "presign")
	require.Equal(t, []string{"decks/1/deck_42_x.pptx"}, objs.removed)

	objs = &fakeObjects{}
	d, _ = NewLinkDelivery(objs, &fakeSender{err: errors.New("blocked")}, Config{Bucket: "decks"}, nil, nil)
	require.ErrorContains(t, d.Deliver(context.Background(), "1", testArtifact, ""), "send link")
	require.Equal(t, []string{"decks/1/deck_42_x.pptx"}, objs.removed)
}

func TestLinkDelivery_FallbackOnlyWhenTooLarge(t *testing.T) {
	objs, sender := &fakeObjects{}, &fakeSender{}

	primary := &fakePrimary{}
	d, _ := NewLinkDelivery(objs, sender, Config{Bucket: "decks", LinkTTL: time.Hour, Label: "Yuklab olish"}, primary, nil)
	require.NoError(t, d.Deliver(context.Background(), "1", testArtifact, ""))
	require.Equal(t, 1, primary.calls)
	require.Empty(t, objs.lastKey)

	primary.err = statusErr(http.StatusBadRequest)
	require.ErrorIs(t, d.Deliver(context.Background(), "1", testArtifact, ""), statusErr(http.StatusBadRequest))
	require.Empty(t, objs.lastKey)

	primary.err = statusErr(http.StatusRequestEntityTooLarge)
	require.NoError(t, d.Deliver(context.Background(), "1", testArtifact, "c"))
	require.Equal(t, "decks/1/deck_42_x.pptx", objs.lastKey)
	require.Equal(t, time.Hour, objs.lastExpires)
	require.Equal(t, "Yuklab olish", sender.lastLabel)
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "decks/42/a.pptx", objectKey("42", "a.pptx"))
	require.Equal(t, "decks/42/a.pptx", objectKey("42", "../../a.pptx"))
	require.Equal(t, "decks/unknown/deck.pptx", objectKey("", ""))
	require.Equal(t, "decks/a_b/x.pptx", objectKey("a/b", `c:\x.pptx`))
}
