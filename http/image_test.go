package http

import (
	"bytes"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basebuzz/domain"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

// upload sends files as a multipart form under field.
func (ts *testServer) upload(t *testing.T, path, field, token string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func TestUserImages(t *testing.T) {
	ts := newTestServer(t, Config{})
	token, _ := ts.login(t)

	rec := ts.upload(t, "/api/user/images/avatar", "image", token, map[string][]byte{"me.png": pngBytes(t)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user domain.User
	decode(t, rec, &user)
	require.NotEmpty(t, user.AvatarURL)
	assert.True(t, strings.HasPrefix(user.AvatarURL, "/images/user/"))
	first := user.AvatarURL

	// The stored image is served.
	rec = ts.do(t, "GET", first, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes(t), rec.Body.Bytes())

	// A new avatar replaces the old file.
	rec = ts.upload(t, "/api/user/images/avatar", "image", token, map[string][]byte{"me2.png": pngBytes(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &user)
	assert.NotEqual(t, first, user.AvatarURL)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", first, nil, "").Code)

	rec = ts.do(t, "DELETE", "/api/user/images/avatar", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &user)
	assert.Empty(t, user.AvatarURL)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "DELETE", "/api/user/images/avatar", nil, token).Code)

	t.Run("rejects", func(t *testing.T) {
		rec := ts.upload(t, "/api/user/images/banner", "image", token, map[string][]byte{"me.png": pngBytes(t)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = ts.upload(t, "/api/user/images/header", "image", token, map[string][]byte{"me.gif": pngBytes(t)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = ts.upload(t, "/api/user/images/header", "image", token, map[string][]byte{"me.jpeg": pngBytes(t)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = ts.upload(t, "/api/user/images/header", "image", token, map[string][]byte{"me.png": []byte("not an image")})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = ts.upload(t, "/api/user/images/header", "image", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPostImages(t *testing.T) {
	ts := newTestServer(t, Config{})
	owner, _ := ts.login(t)
	other, _ := ts.login(t)
	post := createTestPost(t, ts, owner, "with pictures")
	path := postPath(post.ID, "/images")

	files := map[string][]byte{"a.png": pngBytes(t), "b.png": pngBytes(t)}
	rec := ts.upload(t, path, "images", owner, files)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got domain.Post
	decode(t, rec, &got)
	assert.Equal(t, 2, got.ImageCount)
	require.Len(t, got.Images, 2)

	// Uploading again replaces the images.
	rec = ts.upload(t, path, "images", owner, map[string][]byte{"c.png": pngBytes(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, "GET", postPath(post.ID, ""), nil, "")
	decode(t, rec, &got)
	assert.Equal(t, 1, got.ImageCount)
	require.Len(t, got.Images, 1)
	assert.Equal(t, http.StatusOK, ts.do(t, "GET", got.Images[0].URL, nil, "").Code)

	t.Run("rejects", func(t *testing.T) {
		rec := ts.upload(t, path, "images", other, map[string][]byte{"a.png": pngBytes(t)})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		five := map[string][]byte{}
		for _, n := range []string{"1", "2", "3", "4", "5"} {
			five[n+".png"] = pngBytes(t)
		}
		rec = ts.upload(t, path, "images", owner, five)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	// Deleting the post removes its images.
	url := got.Images[0].URL
	require.Equal(t, http.StatusOK, ts.do(t, "DELETE", postPath(post.ID, ""), nil, owner).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", url, nil, "").Code)
}

func TestImageFileNotFound(t *testing.T) {
	ts := newTestServer(t, Config{})
	assert.Equal(t, http.StatusNotFound, ts.do(t, "GET", "/images/user/1/missing.png", nil, "").Code)
	assert.NotEqual(t, http.StatusOK, ts.do(t, "GET", "/images/user/../../etc/passwd", nil, "").Code)
}
