package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memStore) Put(_ context.Context, name string, r io.Reader, _ int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.objects[name] = data
	m.types[name] = contentType
	return "http://files/" + name, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadService(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}, types: map[string]string{}}
	svc := NewUploadService(store)
	ctx := context.Background()

	att, err := svc.Upload(ctx, guest, "../my photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", att.ContentType)
	assert.Equal(t, "my_photo.png", att.Name)
	assert.True(t, strings.HasPrefix(att.URL, "http://files/attachments/1/"))
	require.Len(t, store.objects, 1)

	_, err = svc.Upload(ctx, guest, "notes.txt", strings.NewReader("plain text"))
	requireCode(t, err, "bad_request:api")

	big := append(append([]byte{}, pngHeader...), make([]byte, MaxUploadSize)...)
	_, err = svc.Upload(ctx, guest, "big.png", bytes.NewReader(big))
	requireCode(t, err, "bad_request:api")

	_, err = svc.Upload(ctx, guest, "empty.png", bytes.NewReader(nil))
	requireCode(t, err, "bad_request:api")

	_, err = svc.Upload(ctx, nil, "a.png", bytes.NewReader(pngHeader))
	requireCode(t, err, "unauthorized:api")
}
