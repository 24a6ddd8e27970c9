package templates_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-article/pkg/simplearticle"
	"github.com/tendant/simple-article/pkg/simplearticle/repo/memory"
	"github.com/tendant/simple-article/pkg/simplearticle/templates"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	p := templates.NewStatic(map[string]string{"default": "<p>start</p>", "faq": "<h2>FAQ</h2>"})
	body, err := p.DefaultBody(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "<p>start</p>", body)

	body, err = p.DefaultBody(ctx, "faq")
	require.NoError(t, err)
	assert.Equal(t, "<h2>FAQ</h2>", body)

	_, err = p.DefaultBody(ctx, "missing")
	assert.ErrorIs(t, err, simplearticle.ErrNotFound)

	_, err = p.DefaultBody(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, simplearticle.ErrValidation)

	body, err = templates.NewStatic(nil).DefaultBody(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestFS(t *testing.T) {
	ctx := context.Background()
	p := templates.NewFS(fstest.MapFS{
		"default.html": {Data: []byte("<p>default</p>")},
		"news.html":    {Data: []byte("<p>news</p>")},
	})

	body, err := p.DefaultBody(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "<p>default</p>", body)

	body, err = p.DefaultBody(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, "<p>news</p>", body)

	_, err = p.DefaultBody(ctx, "gone")
	assert.ErrorIs(t, err, simplearticle.ErrNotFound)

	body, err = templates.NewFS(fstest.MapFS{}).DefaultBody(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestNewDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.html"), []byte("<p>disk</p>"), 0o644))

	p, err := templates.NewDir(dir)
	require.NoError(t, err)
	body, err := p.DefaultBody(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "<p>disk</p>", body)

	_, err = templates.NewDir(filepath.Join(dir, "default.html"))
	assert.Error(t, err)
	_, err = templates.NewDir("")
	assert.Error(t, err)
}

// fakeS3 keeps objects in memory and answers like S3 for missing keys.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	p := templates.NewS3WithClient(client, "site", "templates/")

	body, err := p.DefaultBody(ctx, "")
	require.NoError(t, err, "missing default template is an empty body")
	assert.Empty(t, body)

	_, err = p.DefaultBody(ctx, "landing")
	assert.ErrorIs(t, err, simplearticle.ErrNotFound)

	require.NoError(t, p.Put(ctx, "landing", "<h1>Welcome</h1>"))
	assert.Contains(t, client.objects, "site/templates/landing.html")

	body, err = p.DefaultBody(ctx, "landing")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Welcome</h1>", body)

	assert.ErrorIs(t, p.Put(ctx, "bad/id", "x"), simplearticle.ErrValidation)
}

func TestTemplateFeedsNewArticles(t *testing.T) {
	ctx := context.Background()
	svc, err := simplearticle.New(
		simplearticle.WithRepository(memory.New()),
		simplearticle.WithTemplateProvider(templates.NewStatic(map[string]string{"faq": "<h2>Questions</h2>"})),
	)
	require.NoError(t, err)

	view, err := svc.CreateContent(ctx, simplearticle.CreateArticleRequest{Title: "FAQ", AuthorID: uuid.New(), TemplateID: "faq"})
	require.NoError(t, err)
	assert.Equal(t, "<h2>Questions</h2>", view.Body)

	_, err = svc.CreateContent(ctx, simplearticle.CreateArticleRequest{Title: "Other", AuthorID: uuid.New(), TemplateID: "nope"})
	assert.ErrorIs(t, err, simplearticle.ErrNotFound)
}
